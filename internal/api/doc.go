// Package api hosts the optional status server of a crawl run. Routes:
//   - GET /healthz and /readyz for probes; readyz turns ready once the
//     search has produced a listing.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for the live counters of the run.
//   - GET /v1/fields for the field catalog.
package api
