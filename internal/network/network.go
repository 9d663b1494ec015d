// Package network is the peer-to-peer transport: length-prefixed framed
// TCP connections, a genesis-hash-gated handshake, and routing of
// inbound messages to the mempool, block processor, and consensus
// engine.
package network
