// Package audit carries security events from the engine to pluggable sinks.
//
// The engine decides which events to emit; this package only buffers and
// delivers them. [Dispatcher] relays events asynchronously and either drops
// (counting drops) or blocks when its buffer is full.
package audit
