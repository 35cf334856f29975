// Package httpserver builds the gateway's HTTP listener.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server with timeouts sized for proxy traffic: slow-loris
// protection on the header read, but no overall write deadline since a
// forward may legitimately run up to the proxy timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
