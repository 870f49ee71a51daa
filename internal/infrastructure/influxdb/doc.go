// Package influxdb mirrors recorded MQTT messages into InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Each message becomes
// one point in the configured measurement, tagged with its topic and carrying
// the payload, QoS and retain flag as fields, timestamped with the receive time.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMessage(time.Now(), "sensors/a/temp", []byte("21.5"), 0, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Batch write failures surface asynchronously through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
