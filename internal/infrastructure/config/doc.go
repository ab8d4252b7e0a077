// Package config handles loading and validating release2mqtt configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Writing a default file on first start
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file is written with restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("conf/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Node.Name)
package config
