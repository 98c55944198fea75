// Package api hosts the HTTP server and middleware of the redirector.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /ws/live-traffic for the live click feed.
//   - GET {stealth path} and {video path} for the intermediate hops.
//   - GET /{slug} to resolve a short link.
package api
