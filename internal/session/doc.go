// Package session turns a stream of gas readings into per-session CSV files
// held by the cache package. It owns the session file naming convention, the
// fixed six-column row layout, and the read side used by listing consumers:
// summaries with record counts, previews and exports. Readings and locations
// are opaque strings; only the field count is checked.
package session
