// Package server runs ONC RPC programs over UDP and TCP.
//
// A Server owns one datagram socket and/or one stream listener and
// dispatches every call to the Program registered for its program number.
// It takes care of the parts every responder shares: call parsing, version
// negotiation, rate limiting, metrics and graceful shutdown of stream
// connections. Programs only see decoded calls and return encoded results.
package server
