package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/article"
	"github.com/JakeFAU/wikicrawler/internal/config"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

func TestServer_Parse_Succeeds(t *testing.T) {
	t.Parallel()

	svc := &fakeService{parseResult: article.ParseResult{
		Article: crawler.StoredArticle{ID: "a-1", Key: "Go_(language)", Title: "Go"},
		Summary: &crawler.Summary{ArticleID: "a-1", Text: "A language."},
		Tree:    &crawler.ArticleNode{ID: "a-1", Key: "Go_(language)", Title: "Go"},
		Nodes:   3,
		Stats:   crawler.Stats{Fetched: 3, Persisted: 3},
	}}
	server := newTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/parse",
		bytes.NewBufferString(`{"url":"https://ru.wikipedia.org/wiki/Go_(language)","max_depth":1}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "a-1", resp.ID)
	require.Equal(t, "A language.", resp.Summary)
	require.Equal(t, 3, resp.Nodes)
	require.Equal(t, "https://ru.wikipedia.org/wiki/Go_%28language%29", resp.URL)
	require.EqualValues(t, 3, resp.Stats.Persisted)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, "https://ru.wikipedia.org/wiki/Go_(language)", svc.lastRef)
	require.NotNil(t, svc.lastOverrides.MaxDepth)
	require.Equal(t, 1, *svc.lastOverrides.MaxDepth)
	require.Nil(t, svc.lastOverrides.MaxFanout)
}

func TestServer_Parse_InvalidRequests(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invalid json":    "{invalid",
		"missing url":     `{"url":"  "}`,
		"negative depth":  `{"url":"Go","max_depth":-1}`,
		"negative fanout": `{"url":"Go","max_fanout":-2}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/parse", bytes.NewBufferString(body))
			newTestServer(&fakeService{}).Handler().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_Parse_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid seed", fmt.Errorf("%w: bad", crawler.ErrInvalidSeed), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: Missing", crawler.ErrNotFound), http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/parse", bytes.NewBufferString(`{"url":"Go"}`))
			newTestServer(&fakeService{parseErr: tc.err}).Handler().ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestServer_Summary(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		stored:  crawler.StoredArticle{ID: "a-1", Key: "Go", Title: "Go"},
		summary: crawler.Summary{ArticleID: "a-1", Text: "Short."},
	}
	server := newTestServer(svc)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/summary?url=Go", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"a-1","key":"Go","title":"Go","summary":"Short."}`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/summary", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Summary_NotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeService{summaryErr: crawler.ErrNotFound})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/summary?url=Nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ready := newTestServer(&fakeService{})
	rec := httptest.NewRecorder()
	ready.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	notReady := NewServer(&fakeService{}, func(context.Context) error { return errors.New("db down") },
		testConfig(), zap.NewNop())
	rec = httptest.NewRecorder()
	notReady.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_WelcomeAndMetrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeService{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/v1/parse")

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(&fakeService{stored: crawler.StoredArticle{ID: "a"}}, nil, cfg, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/summary?url=Go", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/summary?url=Go", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Health checks stay open.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeService{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/parse", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.GreaterOrEqual(t, rec.Code, http.StatusOK)
	require.Less(t, rec.Code, http.StatusMultipleChoices)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	require.Empty(t, rec.Body.String())

	cfg := testConfig()
	cfg.Server.CORSAllowedOrigins = []string{"https://allowed.test"}
	restricted := NewServer(&fakeService{}, nil, cfg, zap.NewNop())

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://other.test")
	rec = httptest.NewRecorder()
	restricted.Handler().ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://allowed.test")
	rec = httptest.NewRecorder()
	restricted.Handler().ServeHTTP(rec, req)
	require.Equal(t, "https://allowed.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeService{panicOnParse: true})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/parse", bytes.NewBufferString(`{"url":"Go"}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(&fakeService{}).Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	newTestServer(&fakeService{}).Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeService struct {
	mu            sync.Mutex
	parseResult   article.ParseResult
	parseErr      error
	panicOnParse  bool
	lastRef       string
	lastOverrides article.Overrides

	stored     crawler.StoredArticle
	summary    crawler.Summary
	summaryErr error
}

func (f *fakeService) Parse(_ context.Context, ref string, overrides article.Overrides) (article.ParseResult, error) {
	if f.panicOnParse {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRef = ref
	f.lastOverrides = overrides
	return f.parseResult, f.parseErr
}

func (f *fakeService) Summary(context.Context, string) (crawler.StoredArticle, crawler.Summary, error) {
	return f.stored, f.summary, f.summaryErr
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{RequestTimeout: 5 * time.Second},
		Crawler: config.CrawlerConfig{BaseURL: "https://ru.wikipedia.org/wiki/"},
		Logging: config.LoggingConfig{Development: true},
	}
}

func newTestServer(svc ArticleService) *Server {
	return NewServer(svc, nil, testConfig(), zap.NewNop())
}
