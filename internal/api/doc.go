// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /screenshot renders (or serves from cache) a capture of a web page.
//   - POST /clear-cache empties both cache layers; it always requires the API key.
//   - GET /health, /healthz and /readyz for load balancers and Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
