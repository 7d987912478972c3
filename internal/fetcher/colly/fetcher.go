// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
)

// DefaultBaseURL is the article root keys are resolved against.
const DefaultBaseURL = "https://ru.wikipedia.org/wiki/"

// Config controls collector behavior.
type Config struct {
	BaseURL       string
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       Waiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("colly fetcher: base url %q must be http(s)", cfg.BaseURL)
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = crawler.DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		logger:        logger.Named("colly_fetcher"),
		baseCollector: c,
	}, nil
}

// URLFor resolves a canonical key against the configured base URL.
func (f *Fetcher) URLFor(key crawler.CanonicalKey) string {
	return f.cfg.BaseURL + key.EscapedPath()
}

// Fetch retrieves the article markup for key. Non-2xx responses, transport
// failures and cancellation are reported as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, key crawler.CanonicalKey) ([]byte, error) {
	if !key.Valid() {
		return nil, &crawler.FetchError{Key: key, Err: crawler.ErrInvalidSeed}
	}
	target := f.URLFor(key)
	start := time.Now()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target); err != nil {
			return nil, &crawler.FetchError{Key: key, URL: target, Err: err}
		}
	}

	result := &fetchResult{}
	collector := f.buildCollector(ctx, result)
	finished, err := f.runCollector(ctx, collector, target, result)
	if err != nil {
		fetchErr := &crawler.FetchError{Key: key, URL: target, Err: err}
		if finished {
			fetchErr.StatusCode = result.status
		}
		metrics.ObserveFetch(target, outcomeFor(fetchErr), 0, time.Since(start))
		f.logger.Debug("fetch failed", zap.String("url", target), zap.Int("status", fetchErr.StatusCode), zap.Error(err))
		return nil, fetchErr
	}

	metrics.ObserveFetch(target, "success", len(result.body), time.Since(start))
	return result.body, nil
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

func (f *Fetcher) buildCollector(ctx context.Context, result *fetchResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

// runCollector reports finished=false when ctx ended first; result must not
// be read in that case because the visit goroutine may still write to it.
func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	target string,
	result *fetchResult,
) (finished bool, err error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if result.err != nil {
			return true, fmt.Errorf("colly response failed: %w", result.err)
		}
		if visitErr != nil {
			return true, fmt.Errorf("colly visit failed: %w", visitErr)
		}
		if result.status < http.StatusOK || result.status >= http.StatusMultipleChoices {
			return true, fmt.Errorf("unexpected status %d", result.status)
		}
		return true, nil
	}
}

func outcomeFor(err *crawler.FetchError) string {
	switch {
	case err.StatusCode != 0:
		return "status_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
}
