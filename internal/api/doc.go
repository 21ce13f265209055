// Package api hosts the worker's operational HTTP surface:
//   - GET /healthz and /readyz for liveness and readiness probes; readiness
//     pings the configured queue and record store.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs to enqueue an enrichment job.
package api
