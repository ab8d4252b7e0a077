// Package policy decides when units with the auto update policy are
// installed without an operator command.
//
// A unit is due when its last install attempt is older than the configured
// interval, or it has never been attempted. Due units are sent through the
// same dispatcher that handles commands from Home Assistant, tagged with
// source "auto".
package policy
