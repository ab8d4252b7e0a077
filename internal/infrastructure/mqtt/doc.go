// Package mqtt provides MQTT client connectivity for release2mqtt.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained publishing of discovery and state payloads
//   - Topic subscriptions with wildcard support
//   - Availability topic with Last Will and Testament (LWT)
//   - Client-side no-local filtering of our own publishes
//
// # Architecture
//
// Home Assistant and release2mqtt talk only through the broker. The bridge
// publishes retained discovery config and state, and listens for install
// commands on a per-node topic.
//
//	release2mqtt ↔ MQTT Broker ↔ Home Assistant
//
// # No-local
//
// paho.mqtt.golang speaks MQTT 3.1.1, which has no subscription option to
// suppress a client's own messages. SubscribeOptions.NoLocal emulates it by
// dropping non-retained deliveries whose payload equals the last payload this
// client published on the same topic.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Options{
//	    Availability: &mqtt.Availability{
//	        Topic: "release2mqtt/nas01/availability", Online: "online", Offline: "offline",
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("release2mqtt/nas01/docker", mqtt.SubscribeOptions{QoS: 1},
//	    func(msg mqtt.Message) error {
//	        log.Printf("command: %s = %s", msg.Topic, msg.Payload)
//	        return nil
//	    })
//
//	client.PublishJSON("release2mqtt/nas01/docker/web", state)
package mqtt
