// Package api hosts the HTTP server for the query engine. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/query to ask a question over the indexed articles.
//   - GET /v1/articles to list stored articles, newest first.
package api
