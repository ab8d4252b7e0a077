package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/release2mqtt/internal/release"
)

// Measurement names.
const (
	MeasurementDiscovery = "release_discovery"
	MeasurementUpdate    = "release_update"
)

// WriteDiscovery records the state of one unit as seen by a scan.
//
// Tags: node, source_type, name, update_policy.
// Fields: update_available, can_update, installed_version, latest_version, session.
func (c *Client) WriteDiscovery(d *release.Discovery) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementDiscovery,
		c.tags(d),
		map[string]any{
			"update_available":  d.UpdateAvailable(),
			"can_update":        d.CanUpdate,
			"installed_version": d.CurrentVersion,
			"latest_version":    d.LatestVersion,
			"session":           d.Session,
		},
		c.now(),
	)
	c.writeAPI.WritePoint(point)
}

// RecordUpdate records the outcome of an install. It satisfies the
// dispatcher's Recorder interface.
//
// Parameters:
//   - d: The Discovery the outcome applies to
//   - outcome: "updated" or "failed"
//   - source: Where the command came from, "mqtt" or "auto"
//
// Example:
//
//	client.RecordUpdate(d, "updated", "auto")
func (c *Client) RecordUpdate(d *release.Discovery, outcome, source string) {
	if !c.IsConnected() {
		return
	}

	tags := c.tags(d)
	tags["outcome"] = outcome
	tags["source"] = source

	point := write.NewPoint(
		MeasurementUpdate,
		tags,
		map[string]any{
			"success":           outcome == "updated",
			"installed_version": d.CurrentVersion,
			"latest_version":    d.LatestVersion,
		},
		c.now(),
	)
	c.writeAPI.WritePoint(point)
}

func (c *Client) tags(d *release.Discovery) map[string]string {
	return map[string]string{
		"node":          c.node,
		"source_type":   d.SourceType,
		"name":          d.Name,
		"update_policy": string(d.UpdatePolicy),
	}
}
