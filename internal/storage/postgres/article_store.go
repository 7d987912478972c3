// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	maxTitleChars           = 255
	foreignKeyViolationCode = "23503"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	ArticlesTable   string
	SummariesTable  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ArticleStore persists articles and summaries in Postgres. Upserts are
// idempotent on the article url column.
type ArticleStore struct {
	pool      pgxPool
	ids       crawler.IDGenerator
	clock     crawler.Clock
	articles  string
	summaries string
}

// NewArticleStore connects a pool using cfg.
func NewArticleStore(ctx context.Context, cfg Config, ids crawler.IDGenerator, clock crawler.Clock) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewArticleStoreWithPool(pool, cfg, ids, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(pool pgxPool, cfg Config, ids crawler.IDGenerator, clock crawler.Clock) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	articles := cfg.ArticlesTable
	if articles == "" {
		articles = "articles"
	}
	summaries := cfg.SummariesTable
	if summaries == "" {
		summaries = "summaries"
	}
	for _, table := range []string{articles, summaries} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &ArticleStore{
		pool:      pool,
		ids:       ids,
		clock:     clock,
		articles:  articles,
		summaries: summaries,
	}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *ArticleStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the article and summary tables when missing.
func (s *ArticleStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	url        VARCHAR(512) NOT NULL UNIQUE,
	title      VARCHAR(255) NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	level      INTEGER NOT NULL DEFAULT 0,
	parent_id  TEXT REFERENCES %[1]s(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_parent_id_idx ON %[1]s (parent_id);
CREATE TABLE IF NOT EXISTS %[2]s (
	article_id TEXT PRIMARY KEY REFERENCES %[1]s(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`, s.articles, s.summaries)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Upsert inserts draft and returns the stored row. When another writer
// already stored the key the existing row is read back and returned.
func (s *ArticleStore) Upsert(ctx context.Context, draft crawler.ArticleDraft) (crawler.StoredArticle, error) {
	if !draft.Key.Valid() {
		return crawler.StoredArticle{}, fmt.Errorf("upsert article: empty key")
	}
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.StoredArticle{}, fmt.Errorf("upsert article %s: %w", draft.Key, err)
	}
	now := s.clock.Now()
	query := fmt.Sprintf(`
INSERT INTO %s (id, url, title, content, level, parent_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (url) DO NOTHING
RETURNING id, url, title, content, level, COALESCE(parent_id, ''), created_at`, s.articles)

	row := s.pool.QueryRow(ctx, query,
		id,
		string(draft.Key),
		truncateTitle(draft.Title),
		draft.Body,
		draft.Depth,
		nullable(draft.ParentID),
		now,
	)
	stored, err := scanArticle(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return crawler.StoredArticle{}, fmt.Errorf("insert article %s: %w", draft.Key, err)
	}
	existing, err := s.GetByKey(ctx, draft.Key)
	if err != nil {
		return crawler.StoredArticle{}, fmt.Errorf("read conflicting article %s: %w", draft.Key, err)
	}
	return existing, nil
}

// GetByKey fetches an article by canonical key.
func (s *ArticleStore) GetByKey(ctx context.Context, key crawler.CanonicalKey) (crawler.StoredArticle, error) {
	query := fmt.Sprintf(`
SELECT id, url, title, content, level, COALESCE(parent_id, ''), created_at
FROM %s
WHERE url = $1`, s.articles)
	stored, err := scanArticle(s.pool.QueryRow(ctx, query, string(key)))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.StoredArticle{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.StoredArticle{}, fmt.Errorf("get article %s: %w", key, err)
	}
	return stored, nil
}

// ListChildren returns the articles discovered from parentID ordered by key.
func (s *ArticleStore) ListChildren(ctx context.Context, parentID string) ([]crawler.StoredArticle, error) {
	query := fmt.Sprintf(`
SELECT id, url, title, content, level, COALESCE(parent_id, ''), created_at
FROM %s
WHERE parent_id = $1
ORDER BY url`, s.articles)
	rows, err := s.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var children []crawler.StoredArticle
	for rows.Next() {
		child, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child of %s: %w", parentID, err)
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children of %s: %w", parentID, err)
	}
	return children, nil
}

// SaveSummary creates or replaces the summary for articleID.
func (s *ArticleStore) SaveSummary(ctx context.Context, articleID string, text string) (crawler.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return crawler.Summary{}, fmt.Errorf("save summary: empty text")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (article_id, content, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (article_id) DO UPDATE
SET content = EXCLUDED.content, created_at = EXCLUDED.created_at
RETURNING article_id, content, created_at`, s.summaries)

	var summary crawler.Summary
	err := s.pool.QueryRow(ctx, query, articleID, text, s.clock.Now()).
		Scan(&summary.ArticleID, &summary.Text, &summary.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return crawler.Summary{}, crawler.ErrNotFound
		}
		return crawler.Summary{}, fmt.Errorf("save summary for %s: %w", articleID, err)
	}
	return summary, nil
}

// GetSummary fetches the summary for articleID.
func (s *ArticleStore) GetSummary(ctx context.Context, articleID string) (crawler.Summary, error) {
	query := fmt.Sprintf(`
SELECT article_id, content, created_at
FROM %s
WHERE article_id = $1`, s.summaries)

	var summary crawler.Summary
	err := s.pool.QueryRow(ctx, query, articleID).
		Scan(&summary.ArticleID, &summary.Text, &summary.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Summary{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Summary{}, fmt.Errorf("get summary for %s: %w", articleID, err)
	}
	return summary, nil
}

func scanArticle(row pgx.Row) (crawler.StoredArticle, error) {
	var (
		stored crawler.StoredArticle
		key    string
	)
	err := row.Scan(
		&stored.ID,
		&key,
		&stored.Title,
		&stored.Body,
		&stored.Depth,
		&stored.ParentID,
		&stored.CreatedAt,
	)
	if err != nil {
		return crawler.StoredArticle{}, err
	}
	stored.Key = crawler.CanonicalKey(key)
	return stored, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleChars {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleChars])
}
