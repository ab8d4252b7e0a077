// Package lifecycle removes retained topics that no longer belong to a
// running unit.
//
// Every scan tags the payloads it publishes with a fresh session token.
// After the scan, the Sweeper opens a separate bus connection, listens to
// the retained config and state topics of one provider for a short window,
// and retracts every retained payload whose source_session is missing or
// differs from the current session. Units that disappeared since the last
// scan therefore vanish from Home Assistant.
//
// A unit removed and re-added within one window may race with the sweep.
package lifecycle
