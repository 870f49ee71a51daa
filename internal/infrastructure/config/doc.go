// Package config handles loading and validating mqtt-recorder configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The top-level keys mqtt_address, topics and output_file keep the layout of
// existing recorder configuration files. Each entry in topics is either a
// plain pattern string or a mapping with topic, qos and callback keys:
//
//	mqtt_address: "broker.local:1883"
//	topics:
//	  - "#"
//	  - topic: "sensors/+/temp"
//	    qos: 1
//	    callback: log
//	output_file: "mqtt.log"
//
// Security Considerations:
//   - Tokens (influxdb.token) should be set via environment variables
//
// Usage:
//
//	cfg, err := config.Load("recorder.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	host, port, _ := cfg.Broker()
package config
