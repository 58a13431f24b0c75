package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumrag/internal/clock/system"
	"github.com/JakeFAU/forumrag/internal/forum"
)

var taipei = time.FixedZone("CST", 8*3600)

func fixedNow() system.Fixed {
	return system.Fixed(time.Date(2025, 6, 15, 8, 30, 0, 0, taipei))
}

func newTestArticleParser() *ArticleParser {
	return NewArticleParser(NewTimeParser(taipei, fixedNow(), nil), "※ 發信站")
}

func indexHTML(wellFormed, missing int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="r-list-container">`)
	for i := 0; i < wellFormed; i++ {
		fmt.Fprintf(&b, `<div class="r-ent"><div class="title"><a href="/bbs/Stock/M.%d.A.html">post %d</a></div></div>`, i, i)
	}
	for i := 0; i < missing; i++ {
		b.WriteString(`<div class="r-ent"><div class="title">(本文已被刪除)</div></div>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func TestParseIndexSkipsEntriesWithoutAnchor(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ n, m int }{{0, 0}, {3, 0}, {0, 4}, {5, 2}, {20, 7}} {
		urls, err := ParseIndex(indexHTML(tc.n, tc.m), "https://forum.example")
		require.NoError(t, err)
		require.Len(t, urls, tc.n, "n=%d m=%d", tc.n, tc.m)
	}
}

func TestParseIndexResolvesAbsoluteURLsInOrder(t *testing.T) {
	t.Parallel()

	urls, err := ParseIndex(indexHTML(2, 1), "https://forum.example")
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://forum.example/bbs/Stock/M.0.A.html",
		"https://forum.example/bbs/Stock/M.1.A.html",
	}, urls)
}

func TestParseIndexIgnoresEmptyHref(t *testing.T) {
	t.Parallel()

	html := `<div class="r-ent"><a href="">x</a></div><div class="r-ent"><a>y</a></div>`
	urls, err := ParseIndex(html, "https://forum.example")
	require.NoError(t, err)
	require.Empty(t, urls)
}

func TestBoardIndexURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://forum.example/bbs/Stock/index.html", BoardIndexURL("https://forum.example/", "Stock"))
}

const articleHTML = `<html><body><div id="main-content" class="bbs-screen bbs-content">` +
	`<div class="article-metaline"><span class="article-meta-tag">作者</span><span class="article-meta-value">alice (Alice W.)</span></div>` +
	`<div class="article-metaline-right"><span class="article-meta-tag">看板</span><span class="article-meta-value">Stock</span></div>` +
	`<div class="article-metaline"><span class="article-meta-tag">標題</span><span class="article-meta-value">[標的] 2330 台積電</span></div>` +
	`<div class="article-metaline"><span class="article-meta-tag">時間</span><span class="article-meta-value">Thu Jan 04 12:00:00 2024</span></div>` +
	"\n長期看好半導體。\n--\n" +
	`<span class="f2">※ 發信站: 批踢踢實業坊(ptt.cc), 來自: 1.2.3.4</span>` +
	`<div class="push"><span class="push-tag">推 </span><span class="push-userid">bob</span><span class="push-content">: 同意</span><span class="push-ipdatetime"> 01/04 12:05</span></div>` +
	`<div class="push"><span class="push-tag">噓 </span><span class="push-userid">carol</span><span class="push-ipdatetime"> 01/04 12:06</span></div>` +
	`<div class="push"><span class="push-tag">→ </span><span class="push-userid">dave</span><span class="push-content">: 再看看</span><span class="push-ipdatetime">01/04 12:07</span></div>` +
	`</div></body></html>`

func TestParseArticle(t *testing.T) {
	t.Parallel()

	got, err := newTestArticleParser().Parse(articleHTML)
	require.NoError(t, err)

	require.Equal(t, "alice", got.Author)
	require.Equal(t, "[標的] 2330 台積電", got.Title)
	require.True(t, got.PostTime.Equal(time.Date(2024, 1, 4, 12, 0, 0, 0, taipei)))
	require.False(t, got.PostTimeEstimated)
	require.Contains(t, got.Content, "長期看好半導體。")
	require.NotContains(t, got.Content, "發信站")
	require.NotContains(t, got.Content, "同意")

	require.Equal(t, []forum.Comment{
		{Tag: "推", UserID: "bob", Content: "同意", IPDateTime: "01/04 12:05"},
		{Tag: "→", UserID: "dave", Content: "再看看", IPDateTime: "01/04 12:07"},
	}, got.Comments)
}

func TestParseArticleNoData(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no main content": `<html><body><div id="topbar"></div></body></html>`,
		"three meta values": `<div id="main-content">` +
			`<span class="article-meta-value">a</span>` +
			`<span class="article-meta-value">b</span>` +
			`<span class="article-meta-value">c</span></div>`,
		"empty": ``,
	}
	p := newTestArticleParser()
	for name, html := range cases {
		_, err := p.Parse(html)
		require.True(t, errors.Is(err, forum.ErrNoData), name)
	}
}

func TestParseArticleWithoutSignatureKeepsWholeBody(t *testing.T) {
	t.Parallel()

	html := `<div id="main-content">` +
		`<span class="article-meta-value">erin</span><span class="article-meta-value">Tech</span>` +
		`<span class="article-meta-value">hello</span><span class="article-meta-value">Fri Feb  2 08:00:00 2024</span>` +
		`body text</div>`
	got, err := newTestArticleParser().Parse(html)
	require.NoError(t, err)
	require.Equal(t, "erin", got.Author)
	require.True(t, strings.HasSuffix(got.Content, "body text"))
	require.Empty(t, got.Comments)
	require.True(t, got.PostTime.Equal(time.Date(2024, 2, 2, 8, 0, 0, 0, taipei)))
}

func TestParseAuthor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "alice", parseAuthor("alice (Alice W.)"))
	require.Equal(t, "bob", parseAuthor("bob"))
	require.Equal(t, "carol", parseAuthor("carol ()"))
}

func TestTimeParser(t *testing.T) {
	t.Parallel()

	p := NewTimeParser(taipei, fixedNow(), nil)

	full, estimated := p.Parse("Thu Jan 01 12:00:00 2024")
	require.False(t, estimated)
	require.True(t, full.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, taipei)))

	noYear, estimated := p.Parse("Thu Jan 01 12:00:00")
	require.False(t, estimated)
	require.True(t, noYear.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, taipei)))

	padded, estimated := p.Parse("Mon Mar  4 09:15:30 2024")
	require.False(t, estimated)
	require.True(t, padded.Equal(time.Date(2024, 3, 4, 9, 15, 30, 0, taipei)))

	garbage, estimated := p.Parse("yesterday-ish")
	require.True(t, estimated)
	require.True(t, garbage.Equal(time.Time(fixedNow())))
}

func TestTimeParserUsesConfiguredZone(t *testing.T) {
	t.Parallel()

	got, _ := NewTimeParser(taipei, fixedNow(), nil).Parse("Thu Jan 01 12:00:00 2024")
	require.Equal(t, time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC), got.UTC())
}
