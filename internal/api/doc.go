// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - POST /v1/parse crawls a seed article and returns the stored root with
//     its summary and crawl statistics.
//   - GET /v1/summary?url=... returns the stored summary for an article.
//   - GET /healthz and /readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
package api
