// Package mqtt provides the broker transport for mqtt-recorder.
//
// It wraps paho.mqtt.golang and exposes the capability the session needs:
// connect, subscribe, publish, disconnect, and three events (connected,
// message delivered, connection lost).
//
// # Delivery
//
// Subscriptions are made without per-subscription callbacks, so paho routes
// every delivery to the default publish handler and from there to the single
// OnMessage callback. Deliveries are made in order on one goroutine.
//
// # Reconnection
//
// Automatic reconnection is disabled. A lost connection is reported once via
// OnConnectionLost and the client stays disconnected.
//
// # Usage
//
//	client, err := mqtt.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.SetOnMessage(func(topic string, payload []byte, qos byte, retained bool) {
//	    fmt.Printf("%s: %s\n", topic, payload)
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	_ = client.Subscribe("sensors/#", 0)
//	_ = client.Publish("sensors/kitchen/temp", []byte("21.5"), 0, false)
package mqtt
