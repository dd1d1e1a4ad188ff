// Package session owns the client-side authentication state.
//
// Manager holds exactly one session value, persists every transition to the
// durable slot, renews the access token before it expires, and fans state
// changes out to subscribers. At most one renewal is in flight at any time;
// transient refresh failures keep the current session and ride the next
// scheduled check, authentication-class failures clear it.
package session
