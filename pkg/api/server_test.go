package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSConfigEnabled(t *testing.T) {
	assert.False(t, TLSConfig{}.Enabled())
	assert.False(t, TLSConfig{CertFile: "cert.pem"}.Enabled())
	assert.True(t, TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}.Enabled())
}

func TestAPIConfigDefaults(t *testing.T) {
	var cfg APIConfig
	cfg.ApplyDefaults()
	assert.Equal(t, 4159, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
}

func TestStartFailsWithUnloadableTLSMaterial(t *testing.T) {
	srv := NewServer(APIConfig{
		Port: 45159,
		TLS: TLSConfig{
			CertFile: "/does/not/exist/cert.pem",
			KeyFile:  "/does/not/exist/key.pem",
		},
	}, http.NewServeMux())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Start(ctx)
	require.Error(t, err, "unloadable TLS material must surface as a startup error")
}
