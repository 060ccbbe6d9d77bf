// Package api exposes the propagation server's HTTP surface: the session
// based upload pipeline, the read-only fetch endpoints, and health probes.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
)

// Server provides the propagation HTTP(S) server.
//
// Endpoints:
//   - HEAD /{storeId}: store existence probe
//   - POST /upload/{storeId}: start an upload session
//   - HEAD /upload/{storeId}/{sessionId}/*: issue a per-file nonce
//   - PUT  /upload/{storeId}/{sessionId}/*: upload one file
//   - POST /commit/{storeId}/{sessionId}: finalize a session
//   - POST /abort/{storeId}/{sessionId}: discard a session
//   - HEAD /fetch/{storeId}/{roothash}/*: probe a committed file
//   - GET  /fetch/{storeId}/*: download a committed file
//   - GET  /health, /health/ready: probes
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates the propagation HTTP server over a prepared handler.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. When TLS material is configured the listener terminates TLS and
// requests client certificates; a certificate that cannot be loaded surfaces
// as a startup error.
func NewServer(config APIConfig, handler http.Handler) *Server {
	config.ApplyDefaults()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	if config.TLS.Enabled() {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ClientAuth: tls.RequestClientCert,
		}
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
// or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns nil on success. A listener failure (including unloadable TLS
// material) is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS.Enabled() {
			logger.Info("propagation server listening",
				"port", s.config.Port,
				"tls", true,
				"cert_file", s.config.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			logger.Info("propagation server listening", "port", s.config.Port, "tls", false)
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("propagation server shutdown signal received")
		// Fresh context for the drain: the cancelled ctx would abort it.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("propagation server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("propagation server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("propagation server shutdown error: %w", err)
			logger.Error("propagation server shutdown error", "error", err)
		} else {
			logger.Info("propagation server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
