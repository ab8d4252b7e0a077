// Package bridge runs the scan and command loop that ties providers to the
// bus.
//
// One goroutine owns provider state. It runs a scan cycle at start and on
// every tick of the scan interval, and executes queued install commands
// between cycles. Commands arrive on paho's goroutines and are only copied
// onto a bounded queue there; a full queue drops the command.
//
// A scan cycle for each provider:
//  1. starts a new session
//  2. formats and publishes every discovered unit, a bounded number at a time
//  3. applies the auto update policy to the discovered units
//  4. sweeps retained topics left behind by earlier sessions
//
// Each step finishes before the next begins, and cycles never overlap.
package bridge
