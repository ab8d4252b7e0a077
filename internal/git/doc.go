// Package git provides typed access to the git CLI for the source checkouts
// that locally built images are built from.
//
// All commands target a specific repository directory via the -C flag and
// run through a process.Runner, so each one has a timeout and its output
// reaches the log.
package git
