package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumrag/internal/forum"
)

var postedAt = time.Date(2024, 1, 4, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))

func newMockStore(t *testing.T) (*ArticleStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewArticleStore(mock)
	require.NoError(t, err)
	return store, mock
}

func sampleArticle() forum.Article {
	return forum.Article{
		Board:    "Stock",
		Title:    "[標的] 2330",
		Author:   "alice",
		Content:  "body",
		PostTime: postedAt,
		URL:      "https://forum.example/bbs/Stock/M.1.A.html",
	}
}

func expectUpsert(mock pgxmock.PgxPoolIface, a forum.Article, id int64, inserted bool) {
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(a.Board, a.Title, a.Author, a.Content, a.PostTime, a.PostTimeEstimated, a.URL).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(id, inserted))
}

func TestSaveArticleCreatesAndReplacesComments(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	a := sampleArticle()
	comments := []forum.Comment{
		{Tag: "推", UserID: "bob", Content: "同意", IPDateTime: "01/04 12:05"},
		{Tag: "→", UserID: "dave", Content: "再看看", IPDateTime: "01/04 12:07"},
	}

	mock.ExpectBegin()
	expectUpsert(mock, a, 42, true)
	mock.ExpectExec("DELETE FROM comments WHERE article_id").
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"comments"}, commentColumns).WillReturnResult(2)
	mock.ExpectCommit()

	saved, created, err := store.SaveArticle(context.Background(), a, comments)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(42), saved.ID)
	require.Equal(t, a.URL, saved.URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArticleUpdateWithoutCommentsKeepsExisting(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	a := sampleArticle()
	a.Title = "edited"

	mock.ExpectBegin()
	expectUpsert(mock, a, 42, false)
	mock.ExpectCommit()

	saved, created, err := store.SaveArticle(context.Background(), a, nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "edited", saved.Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArticleRollsBackWhenCommentInsertFails(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	a := sampleArticle()

	mock.ExpectBegin()
	expectUpsert(mock, a, 7, false)
	mock.ExpectExec("DELETE FROM comments").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"comments"}, commentColumns).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, _, err := store.SaveArticle(context.Background(), a, []forum.Comment{{Tag: "推", UserID: "x", Content: "y", IPDateTime: "z"}})
	require.ErrorContains(t, err, "insert comments")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArticleRollsBackWhenUpsertFails(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	a := sampleArticle()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO articles").WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	_, _, err := store.SaveArticle(context.Background(), a, nil)
	require.ErrorContains(t, err, "upsert article")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArticleRequiresURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	_, _, err := store.SaveArticle(context.Background(), forum.Article{}, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func articleRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "board", "title", "author", "content", "post_time", "post_time_estimated", "url"})
}

func TestArticlesByID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, board").
		WithArgs([]int64{5, 2, 9}).
		WillReturnRows(articleRows().
			AddRow(int64(2), "Stock", "two", "a", "c2", postedAt, false, "u2").
			AddRow(int64(9), "Stock", "nine", "b", "c9", postedAt, true, "u9"))

	got, err := store.ArticlesByID(context.Background(), []int64{5, 2, 9})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ID)
	require.True(t, got[1].PostTimeEstimated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticlesByIDEmpty(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	got, err := store.ArticlesByID(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComments(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM comments WHERE article_id").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "article_id", "tag", "user_id", "content", "ip_datetime"}).
			AddRow(int64(1), int64(42), "推", "bob", "同意", "01/04 12:05"))

	got, err := store.Comments(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, []forum.Comment{{ID: 1, ArticleID: 42, Tag: "推", UserID: "bob", Content: "同意", IPDateTime: "01/04 12:05"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArticlesAppliesFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := forum.ArticleFilter{Board: "Stock", Author: "alice", Since: &since, Limit: 10, Offset: 20}

	mock.ExpectQuery(`SELECT count\(\*\) FROM articles WHERE board = \$1 AND author = \$2 AND post_time >= \$3`).
		WithArgs("Stock", "alice", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`ORDER BY post_time DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("Stock", "alice", since, 10, 20).
		WillReturnRows(articleRows().AddRow(int64(3), "Stock", "t", "alice", "c", postedAt, false, "u3"))

	got, total, err := store.ListArticles(context.Background(), filter)
	require.NoError(t, err)
	require.Equal(t, 21, total)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArticlesDefaultsLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM articles$`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(defaultListLimit, 0).
		WillReturnRows(articleRows())

	got, total, err := store.ListArticles(context.Background(), forum.ArticleFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewArticleStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStore(nil)
	require.Error(t, err)
}
