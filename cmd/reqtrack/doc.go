// Command reqtrack runs the media request tracker daemon and offers
// operator commands that work directly against the request database: list
// and moderate requests, link library credentials, run a reconciliation
// pass on demand, and check dependency health.
package main
