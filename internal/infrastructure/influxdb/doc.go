// Package influxdb records release telemetry in InfluxDB.
//
// Telemetry is optional. When enabled, every scan writes one
// release_discovery point per unit and every accepted install writes one
// release_update point with its outcome, so update history can be charted
// next to other home metrics.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Node.Name)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDiscovery(d)
//	client.RecordUpdate(d, "updated", "mqtt")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched according to batch_size and
// flush_interval; write errors are delivered to the SetOnError callback.
package influxdb
