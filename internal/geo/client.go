package geo

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewSafeHTTPClient returns the client used for production lookups. safeurl
// rejects private, loopback and metadata destinations after DNS resolution,
// so a misconfigured geo.endpoint cannot be pointed at internal services.
func NewSafeHTTPClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}
