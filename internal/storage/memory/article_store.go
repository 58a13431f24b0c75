// Package memory provides an in-memory article store for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/forumrag/internal/forum"
)

const defaultListLimit = 50

// ArticleStore keeps articles and comments in maps guarded by one mutex, so
// an upsert and its comment replacement are applied atomically.
type ArticleStore struct {
	mu            sync.RWMutex
	articles      map[int64]forum.Article
	byURL         map[string]int64
	comments      map[int64][]forum.Comment
	nextArticleID int64
	nextCommentID int64
}

var _ forum.ArticleStore = (*ArticleStore)(nil)

// NewArticleStore constructs an empty ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		articles: make(map[int64]forum.Article),
		byURL:    make(map[string]int64),
		comments: make(map[int64][]forum.Comment),
	}
}

// SaveArticle upserts by URL and replaces comments when any are given.
func (s *ArticleStore) SaveArticle(
	_ context.Context,
	article forum.Article,
	comments []forum.Comment,
) (forum.Article, bool, error) {
	if article.URL == "" {
		return forum.Article{}, false, errors.New("article url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byURL[article.URL]
	if !exists {
		s.nextArticleID++
		id = s.nextArticleID
		s.byURL[article.URL] = id
	}
	article.ID = id
	s.articles[id] = article

	if len(comments) > 0 {
		replaced := make([]forum.Comment, len(comments))
		for i, c := range comments {
			s.nextCommentID++
			c.ID = s.nextCommentID
			c.ArticleID = id
			replaced[i] = c
		}
		s.comments[id] = replaced
	}
	return article, !exists, nil
}

// ArticlesByID returns the stored articles among ids, ordered by id.
func (s *ArticleStore) ArticlesByID(_ context.Context, ids []int64) ([]forum.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []forum.Article
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if a, ok := s.articles[id]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Comments returns a copy of an article's comments.
func (s *ArticleStore) Comments(_ context.Context, articleID int64) ([]forum.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]forum.Comment(nil), s.comments[articleID]...), nil
}

// ListArticles filters, sorts newest first and paginates.
func (s *ArticleStore) ListArticles(_ context.Context, filter forum.ArticleFilter) ([]forum.Article, int, error) {
	s.mu.RLock()
	matched := make([]forum.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if matches(a, filter) {
			matched = append(matched, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PostTime.Equal(matched[j].PostTime) {
			return matched[i].PostTime.After(matched[j].PostTime)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	start := min(max(filter.Offset, 0), total)
	end := min(start+limit, total)
	return matched[start:end], total, nil
}

func matches(a forum.Article, f forum.ArticleFilter) bool {
	switch {
	case f.Board != "" && a.Board != f.Board:
		return false
	case f.Author != "" && a.Author != f.Author:
		return false
	case f.Since != nil && a.PostTime.Before(*f.Since):
		return false
	case f.Until != nil && !a.PostTime.Before(*f.Until):
		return false
	default:
		return true
	}
}
