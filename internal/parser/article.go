package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/forumrag/internal/forum"
)

// requiredMeta is the number of article-meta-value spans a complete page carries:
// author, board, title and time.
const requiredMeta = 4

// ArticleParser extracts articles from article pages.
type ArticleParser struct {
	times  *TimeParser
	marker string
}

// NewArticleParser builds a parser. Body text is cut at the first occurrence
// of signatureMarker.
func NewArticleParser(times *TimeParser, signatureMarker string) *ArticleParser {
	return &ArticleParser{times: times, marker: signatureMarker}
}

// Parse returns forum.ErrNoData when the page has no main content or is
// missing any required metadata field.
func (p *ArticleParser) Parse(html string) (forum.ParsedArticle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return forum.ParsedArticle{}, fmt.Errorf("parse article html: %w", err)
	}
	mainContent := doc.Find("div#main-content").First()
	if mainContent.Length() == 0 {
		return forum.ParsedArticle{}, forum.ErrNoData
	}
	meta := mainContent.Find("span.article-meta-value")
	if meta.Length() < requiredMeta {
		return forum.ParsedArticle{}, forum.ErrNoData
	}

	postTime, estimated := p.times.Parse(meta.Eq(3).Text())
	parsed := forum.ParsedArticle{
		Author:            parseAuthor(meta.Eq(0).Text()),
		Title:             meta.Eq(2).Text(),
		PostTime:          postTime,
		PostTimeEstimated: estimated,
		Comments:          parseComments(mainContent),
	}

	body := mainContent.Text()
	if p.marker != "" {
		body, _, _ = strings.Cut(body, p.marker)
	}
	parsed.Content = body
	return parsed, nil
}

// parseAuthor turns "handle (nickname)" into "handle".
func parseAuthor(raw string) string {
	raw = strings.Trim(raw, ")")
	handle, _, _ := strings.Cut(raw, "(")
	return strings.TrimSpace(handle)
}

func parseComments(mainContent *goquery.Selection) []forum.Comment {
	var comments []forum.Comment
	mainContent.Find("div.push").Each(func(_ int, push *goquery.Selection) {
		tag, ok1 := spanText(push, "push-tag")
		user, ok2 := spanText(push, "push-userid")
		content, ok3 := spanText(push, "push-content")
		ipTime, ok4 := spanText(push, "push-ipdatetime")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return
		}
		comments = append(comments, forum.Comment{
			Tag:        strings.TrimSpace(tag),
			UserID:     strings.TrimSpace(user),
			Content:    strings.Trim(content, ": "),
			IPDateTime: strings.TrimSpace(ipTime),
		})
	})
	return comments
}

func spanText(push *goquery.Selection, class string) (string, bool) {
	span := push.Find("span." + class).First()
	if span.Length() == 0 {
		return "", false
	}
	return span.Text(), true
}
