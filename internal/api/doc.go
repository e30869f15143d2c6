// Package api hosts the HTTP server, middleware, and REST handlers for the
// scan service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans to submit domains, GET /v1/jobs/{job_id} and
//     POST /v1/jobs/{job_id}/cancel to follow and stop a job.
//   - GET /v1/reports/{report_id} (plus /result and /trusted-contact) and
//     GET /v1/domains/{domain}/latest to read stored reports.
package api
