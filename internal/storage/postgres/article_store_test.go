package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicrawler/internal/clock/system"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

var articleColumns = []string{"id", "url", "title", "content", "level", "parent_id", "created_at"}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

func newMockStore(t *testing.T, id string) (*ArticleStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewArticleStoreWithPool(mock, Config{}, fixedIDs{id: id}, system.NewManual(now))
	require.NoError(t, err)
	return store, mock, now
}

func TestNewArticleStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStoreWithPool(nil, Config{}, fixedIDs{}, system.New())
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewArticleStoreWithPool(mock, Config{ArticlesTable: "bad;table"}, fixedIDs{}, system.New())
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewArticleStoreWithPool(mock, Config{}, nil, system.New())
	require.Error(t, err)
}

func TestUpsertInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id-child")

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs("id-child", "Hogwarts", "Hogwarts", "castle", 1, "id-root", now).
		WillReturnRows(pgxmock.NewRows(articleColumns).
			AddRow("id-child", "Hogwarts", "Hogwarts", "castle", 1, "id-root", now))

	stored, err := store.Upsert(context.Background(), crawler.ArticleDraft{
		Key:      "Hogwarts",
		Title:    "Hogwarts",
		Body:     "castle",
		Depth:    1,
		ParentID: "id-root",
	})
	require.NoError(t, err)
	require.Equal(t, crawler.StoredArticle{
		ID:        "id-child",
		Key:       "Hogwarts",
		Title:     "Hogwarts",
		Body:      "castle",
		Depth:     1,
		ParentID:  "id-root",
		CreatedAt: now,
	}, stored)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRootPassesNullParent(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id-root")

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs("id-root", "Go", "Go", "", 0, nil, now).
		WillReturnRows(pgxmock.NewRows(articleColumns).
			AddRow("id-root", "Go", "Go", "", 0, "", now))

	stored, err := store.Upsert(context.Background(), crawler.ArticleDraft{Key: "Go", Title: "Go"})
	require.NoError(t, err)
	require.Empty(t, stored.ParentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConflictReturnsExistingRow(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id-new")
	earlier := now.Add(-time.Hour)

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs("id-new", "Go", "Go", "body", 0, nil, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(articleColumns))
	mock.ExpectQuery("SELECT id, url, title, content, level").
		WithArgs("Go").
		WillReturnRows(pgxmock.NewRows(articleColumns).
			AddRow("id-old", "Go", "Go", "older body", 0, "", earlier))

	stored, err := store.Upsert(context.Background(), crawler.ArticleDraft{Key: "Go", Title: "Go", Body: "body"})
	require.NoError(t, err)
	require.Equal(t, "id-old", stored.ID)
	require.Equal(t, "older body", stored.Body)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTruncatesLongTitles(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id")
	long := strings.Repeat("я", 300)
	short := strings.Repeat("я", 255)

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs("id", "Long", short, "", 0, nil, now).
		WillReturnRows(pgxmock.NewRows(articleColumns).AddRow("id", "Long", short, "", 0, "", now))

	_, err := store.Upsert(context.Background(), crawler.ArticleDraft{Key: "Long", Title: long})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSurfacesDatabaseErrors(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t, "id")
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs("id", "Go", "Go", "", 0, nil, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := store.Upsert(context.Background(), crawler.ArticleDraft{Key: "Go", Title: "Go"})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByKeyNotFound(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t, "id")
	mock.ExpectQuery("SELECT id, url, title, content, level").
		WithArgs("Missing").
		WillReturnRows(pgxmock.NewRows(articleColumns))

	_, err := store.GetByKey(context.Background(), "Missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChildren(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id")
	mock.ExpectQuery("WHERE parent_id = \\$1").
		WithArgs("id-root").
		WillReturnRows(pgxmock.NewRows(articleColumns).
			AddRow("id-a", "A", "A", "", 1, "id-root", now).
			AddRow("id-b", "B", "B", "", 1, "id-root", now))

	children, err := store.ListChildren(context.Background(), "id-root")
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, crawler.CanonicalKey("A"), children[0].Key)
	require.Equal(t, "id-root", children[1].ParentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSummaryUpserts(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id")
	mock.ExpectQuery("INSERT INTO summaries").
		WithArgs("id-root", "short text", now).
		WillReturnRows(pgxmock.NewRows([]string{"article_id", "content", "created_at"}).
			AddRow("id-root", "short text", now))

	summary, err := store.SaveSummary(context.Background(), "id-root", "short text")
	require.NoError(t, err)
	require.Equal(t, crawler.Summary{ArticleID: "id-root", Text: "short text", CreatedAt: now}, summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSummaryUnknownArticle(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id")
	mock.ExpectQuery("INSERT INTO summaries").
		WithArgs("ghost", "text", now).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := store.SaveSummary(context.Background(), "ghost", "text")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = store.SaveSummary(context.Background(), "ghost", "   ")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSummary(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t, "id")
	mock.ExpectQuery("FROM summaries").
		WithArgs("id-root").
		WillReturnRows(pgxmock.NewRows([]string{"article_id", "content", "created_at"}).
			AddRow("id-root", "digest", now))
	mock.ExpectQuery("FROM summaries").
		WithArgs("id-none").
		WillReturnRows(pgxmock.NewRows([]string{"article_id", "content", "created_at"}))

	summary, err := store.GetSummary(context.Background(), "id-root")
	require.NoError(t, err)
	require.Equal(t, "digest", summary.Text)

	_, err = store.GetSummary(context.Background(), "id-none")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t, "id")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
