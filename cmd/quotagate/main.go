// Quotagate is a rate-limiting sidecar for third-party HTTP APIs.
//
// It forwards local requests to one upstream API and holds each call until
// every quota window the upstream enforces (for example 10 calls per second
// and 50 per two minutes) has capacity, so callers wait instead of being
// rejected with 429.
//
// Usage:
//
//	# Start the sidecar
//	quotagate run --config quotagate.yaml
//
//	# Check a configuration file and print its windows
//	quotagate validate --config quotagate.yaml
//
//	# Show window status of a running sidecar
//	quotagate limits --addr 127.0.0.1:8080
//
//	# Show version information
//	quotagate version
package main

import "os"

func main() {
	os.Exit(Execute())
}
