// Package server exposes the bridge over HTTP.
//
// Routes:
//   - GET /            index page with the instruction form
//   - POST /           starts a run and streams one <p> fragment per event
//   - GET /screenshots/ stored artifacts (when an artifact dir is configured)
//   - GET /healthz     liveness probe
//
// Every request passes through request-id, access-log and panic-recovery
// middleware.
package server
