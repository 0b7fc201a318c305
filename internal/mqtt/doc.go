// Package mqtt publishes batch run events (run started, each video
// processed or failed, run finished) as JSON to an MQTT broker so home
// automation or dashboards can follow a run.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. A retained status
// topic carries "online" while connected, and a will message flips it
// to "offline" on unexpected disconnects.
package mqtt
