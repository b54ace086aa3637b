// Package server implements the HTTP surface of the chat backend.
//
// The implementation is organized into specialized files for configuration,
// origin checks, routing, and HTTP handlers. WebSocket connections are owned
// by the realtime package; this package only mounts its Manager at /ws.
package server
