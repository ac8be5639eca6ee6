// Package inbound exposes the install handshake over HTTP.
//
// The session cookie set on /install is the only link between the redirect and
// the callback; the callback always consumes it.
package inbound
