// Package dispatch turns install commands into provider updates and keeps
// Home Assistant informed while they run.
//
// Each unit moves through a small state machine:
//
//	Idle → InProgress → Updated → Idle
//	                  ↘ Failed  → Idle
//	                  ↘ Idle (provider rejected the command)
//
// A unit enters InProgress before its provider is called. Once the provider
// starts the update, the unit's state is published with in_progress set; a
// provider that rejects the command returns the unit to Idle without any
// publish. Updated publishes the refreshed config and state. Failed republishes the
// last known state with in_progress cleared. Commands that fail validation
// are rejected without any transition, and a second install for a unit that
// is already InProgress is rejected rather than queued.
//
// Commands arrive from the bus and from the auto-update policy; both go
// through Dispatch so they share one code path.
package dispatch
