package ownercache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeMetadata counts permission calls and returns a fixed answer.
type fakeMetadata struct {
	calls   atomic.Int32
	allowed bool
	err     error
}

func (f *fakeMetadata) RootHistory(ctx context.Context, storeID string, bust bool) ([]string, error) {
	return nil, nil
}

func (f *fakeMetadata) HasWritePermission(ctx context.Context, storeID, publicKeyHex string) (bool, error) {
	f.calls.Add(1)
	return f.allowed, f.err
}

func (f *fakeMetadata) RegenerateManifest(ctx context.Context, storeID string) error {
	return nil
}

func (f *fakeMetadata) CacheStoreCreationHeight(ctx context.Context, storeID string) error {
	return nil
}

func TestIsOwner_CachesAnswer(t *testing.T) {
	md := &fakeMetadata{allowed: true}
	c := New(md, time.Minute)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := c.IsOwner(ctx, "pub", "store")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected owner")
		}
	}
	if got := md.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

func TestIsOwner_CachesNegative(t *testing.T) {
	md := &fakeMetadata{allowed: false}
	c := New(md, time.Minute)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := c.IsOwner(ctx, "pub", "store")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected non-owner")
		}
	}
	if got := md.calls.Load(); got != 1 {
		t.Errorf("negative answers should be cached too, got %d calls", got)
	}
}

func TestIsOwner_UpstreamError(t *testing.T) {
	md := &fakeMetadata{err: errors.New("boom")}
	c := New(md, time.Minute)
	defer c.Close()

	if _, err := c.IsOwner(context.Background(), "pub", "store"); err == nil {
		t.Error("expected upstream error to surface")
	}
	// Errors must not be cached.
	md.err = nil
	md.allowed = true
	ok, err := c.IsOwner(context.Background(), "pub", "store")
	if err != nil || !ok {
		t.Errorf("expected retry after error, got ok=%v err=%v", ok, err)
	}
}

func TestIsOwner_ExpiryTriggersRefetch(t *testing.T) {
	md := &fakeMetadata{allowed: true}
	c := New(md, 50*time.Millisecond)
	defer c.Close()

	ctx := context.Background()
	if _, err := c.IsOwner(ctx, "pub", "store"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := c.IsOwner(ctx, "pub", "store"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := md.calls.Load(); got != 2 {
		t.Errorf("expected refetch after expiry, got %d calls", got)
	}
}

func TestRefresh_UnknownEntryNoop(t *testing.T) {
	md := &fakeMetadata{allowed: true}
	c := New(md, time.Minute)
	defer c.Close()

	// Must not panic or create entries.
	c.Refresh("pub", "store")
	if got := md.calls.Load(); got != 0 {
		t.Errorf("refresh must not call upstream, got %d", got)
	}
}
