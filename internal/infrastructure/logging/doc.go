// Package logging provides structured logging for release2mqtt.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	scanLog := logger.Component("scan")
//	scanLog.Info("scan complete", "units", 12)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
