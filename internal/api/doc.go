// Package api hosts the HTTP server, middleware, and REST handlers that let
// an operator drive generate and deploy runs one batch at a time. Notable routes:
//   - GET /healthz for liveness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/generate and /v1/generate/step to crawl into a new archive.
//   - POST /v1/deploy, /v1/deploy/step and /v1/deploy/test to publish it.
//   - GET /v1/status for queue sizes and the current archive.
package api
