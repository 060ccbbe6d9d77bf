// Package handlers implements the propagation server's HTTP handlers: the
// session-based upload pipeline, the read-only fetch surface, the store
// probe, and health checks.
package handlers

import (
	"context"
	"time"

	"github.com/DIG-Network/dig-propagation-server/pkg/datalayer"
	"github.com/DIG-Network/dig-propagation-server/pkg/merkle"
	"github.com/DIG-Network/dig-propagation-server/pkg/metrics"
	"github.com/DIG-Network/dig-propagation-server/pkg/noncecache"
	"github.com/DIG-Network/dig-propagation-server/pkg/ownercache"
	"github.com/DIG-Network/dig-propagation-server/pkg/session"
	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

// defaultExternalTimeout bounds calls into the datalayer when no timeout is
// configured.
const defaultExternalTimeout = 5 * time.Second

// Services bundles the collaborators every handler needs. The three
// registries (sessions, nonces, owners) are constructor-injected here rather
// than held as process globals.
type Services struct {
	Store    *storage.Store
	Sessions *session.Registry
	Nonces   *noncecache.Cache
	Owners   *ownercache.Cache
	Verifier *merkle.Verifier
	Keys     datalayer.KeyVerifier
	Metadata datalayer.MetadataClient
	Metrics  *metrics.PropagationMetrics

	// AdminUsername and AdminPassword gate creation of stores that do not
	// exist on disk yet. An empty password refuses all store creation.
	AdminUsername string
	AdminPassword string

	// MaxFileSize caps a single uploaded file's size in bytes. Zero means
	// unlimited.
	MaxFileSize int64

	// ExternalTimeout bounds each call into the datalayer.
	ExternalTimeout time.Duration
}

// externalCtx derives a deadline-bounded context for a datalayer call.
func (s *Services) externalCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.ExternalTimeout
	if timeout <= 0 {
		timeout = defaultExternalTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
