// Package parser turns board listing and article pages into structured records.
// Parsing is tolerant: malformed entries are skipped rather than failing the page.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseIndex returns the absolute article URLs listed on a board index page,
// in page order. Entries without a link are skipped.
func ParseIndex(html, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}

	var urls []string
	doc.Find("div.r-ent").Each(func(_ int, entry *goquery.Selection) {
		href, ok := entry.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		urls = append(urls, base.ResolveReference(ref).String())
	})
	return urls, nil
}

// BoardIndexURL returns the first listing page of board.
func BoardIndexURL(baseURL, board string) string {
	return strings.TrimRight(baseURL, "/") + "/bbs/" + url.PathEscape(board) + "/index.html"
}
