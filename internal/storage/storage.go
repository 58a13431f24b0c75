// Package storage defines the raw page archive used to keep fetched article
// HTML alongside the parsed records.
package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NopStore discards everything. It is used when archiving is disabled.
type NopStore struct{}

// PutObject returns an empty URI.
func (NopStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}

// PagePath builds "<prefix>/<board>/<yyyy>/<mm>/<dd>/<page>.html" for an
// article URL scraped at t.
func PagePath(prefix, board, articleURL string, t time.Time) string {
	name := articleURL
	if u, err := url.Parse(articleURL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	name = strings.TrimSuffix(name, ".html") + ".html"
	t = t.UTC()
	parts := []string{board, t.Format("2006"), t.Format("01"), t.Format("02"), name}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	return path.Join(parts...)
}
