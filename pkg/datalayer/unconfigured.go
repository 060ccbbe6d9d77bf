package datalayer

import "context"

// Unconfigured is the MetadataClient used when no datalayer endpoint is
// configured. Every call fails with ErrUnavailable, which refuses uploads
// that need root history or permission answers while leaving the read-only
// fetch surface fully functional.
type Unconfigured struct{}

// NewUnconfigured returns the refusing metadata client.
func NewUnconfigured() *Unconfigured {
	return &Unconfigured{}
}

// RootHistory implements MetadataClient.
func (Unconfigured) RootHistory(context.Context, string, bool) ([]string, error) {
	return nil, ErrUnavailable
}

// HasWritePermission implements MetadataClient.
func (Unconfigured) HasWritePermission(context.Context, string, string) (bool, error) {
	return false, ErrUnavailable
}

// RegenerateManifest implements MetadataClient.
func (Unconfigured) RegenerateManifest(context.Context, string) error {
	return ErrUnavailable
}

// CacheStoreCreationHeight implements MetadataClient.
func (Unconfigured) CacheStoreCreationHeight(context.Context, string) error {
	return ErrUnavailable
}
