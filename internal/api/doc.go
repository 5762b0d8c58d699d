// Package api hosts the optional operator HTTP server that runs alongside a
// crawl. Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a JSON snapshot of the running crawl.
package api
