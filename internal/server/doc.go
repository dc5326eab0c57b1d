// Package server hosts the Fiber HTTP service that bridges field devices to
// the session cache. It owns the request-id middleware, the device registry
// built from config, and the ingest handler that starts sessions, appends
// readings and tracks the latest phone location. Read-side and maintenance
// routes live in the routes subpackage so this package stays focused on the
// write path; keep exports narrow and accept explicit dependencies.
package server
