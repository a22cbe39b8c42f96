// Package ws provides the realtime chat transport.
//
// The package implements:
//   - Registry: tracks live connections with session and user indexes
//   - Monitor: a single sweep loop that probes and evicts stale connections
//   - Router: dispatches inbound frames to the chat and session services
//   - Handler: upgrades HTTP requests and runs the per-connection read loop
//
// All frames are JSON objects tagged with a "type" field. Outbound events
// carry server timestamps; inbound frames are validated against a closed
// set of kinds and malformed input never terminates a connection.
package ws
