// Package web serves stored batch runs over HTTP for review.
//
// The dashboard is read-only: it exposes the run history kept by the
// results store and renders each run's report page on demand. There is
// no authentication; the server is meant for a trusted local network.
//
// # Endpoints
//
//   - GET /api/runs: every stored run as JSON, newest first
//   - GET /api/runs/{id}: one run with its full file results
//   - GET /api/runs/{id}/report: the run's HTML report
//   - GET /healthcheck: liveness probe
//   - GET /: redirect to the newest run's report
//
// # Usage
//
//	srv := web.New(store)
//	if err := srv.Run(":8877"); err != nil {
//	    slog.Error("dashboard failed", "err", err)
//	}
package web
