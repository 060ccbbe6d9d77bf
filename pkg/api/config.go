package api

import (
	"time"
)

// APIConfig configures the propagation HTTP server.
//
// The server fronts the upload pipeline and fetch surface. Request bodies
// stream, so there is deliberately no whole-request read or write timeout;
// slow-loris protection comes from the header timeout and the session TTL.
type APIConfig struct {
	// Port is the TCP port for the propagation endpoints.
	// Default: 4159
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadHeaderTimeout is the maximum duration for reading request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// TLS configures the HTTPS listener. When both files are set the server
	// terminates TLS itself and requests (but does not require) client
	// certificates. When unset the server speaks plain HTTP, for deployments
	// that terminate TLS upstream.
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig holds the listener's certificate material.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded server certificate.
	CertFile string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`

	// KeyFile is the path to the PEM-encoded private key.
	KeyFile string `mapstructure:"key_file" yaml:"key_file,omitempty"`
}

// Enabled reports whether the listener should terminate TLS.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 4159
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
