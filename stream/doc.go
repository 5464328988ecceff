// Package stream turns a relay channel into the lazy sequence of HTML
// fragments written to the HTTP response, one flushed <p> block per event.
package stream
