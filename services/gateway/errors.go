package gateway

import "fmt"

// ConfigError is fatal at startup: the gateway refuses to start without
// upstream credentials.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gateway config error: missing %s", e.Field)
}

// GatewayError carries an upstream non-success status or transport failure.
// It is surfaced to the caller and never cached. Status is 0 for transport
// errors that produced no HTTP response.
type GatewayError struct {
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream transport error: %s", e.Message)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
}
