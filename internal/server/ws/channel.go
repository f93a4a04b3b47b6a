// Package ws fans live market updates out to websocket subscribers. The
// market service publishes JSON envelopes onto the signal bus; the hub
// pattern-subscribes and routes each message to the clients watching that
// event.
package ws

import "strings"

// channelPrefix namespaces per-event bus channels.
const channelPrefix = "event:"

// channelPattern matches every per-event channel.
const channelPattern = channelPrefix + "*"

// EventChannel returns the bus channel carrying updates for one event.
func EventChannel(eventID string) string {
	return channelPrefix + eventID
}

// eventIDFromChannel extracts the event id from a per-event channel name.
// ok is false for channels outside the event namespace.
func eventIDFromChannel(channel string) (string, bool) {
	id, found := strings.CutPrefix(channel, channelPrefix)
	if !found || id == "" {
		return "", false
	}
	return id, true
}
