//go:build integration

package influxdb

import (
	"context"
	"os"
	"testing"
	"time"
)

// Integration tests against a live InfluxDB.
//
// Run with:
//   INFLUXDB_URL=http://127.0.0.1:8086 INFLUXDB_TOKEN=... go test -tags=integration ./internal/infrastructure/influxdb/...

func liveClient(t *testing.T) *Client {
	t.Helper()

	cfg := testConfig()
	cfg.URL = os.Getenv("INFLUXDB_URL")
	cfg.Token = os.Getenv("INFLUXDB_TOKEN")
	if cfg.URL == "" {
		t.Skip("INFLUXDB_URL not set")
	}

	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIntegration_WriteMessage(t *testing.T) {
	c := liveClient(t)

	var writeErr error
	c.SetOnError(func(err error) { writeErr = err })

	if err := c.WriteMessage(time.Now(), "mqtt-recorder/test", []byte("1"), 0, false); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	c.Flush()

	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
