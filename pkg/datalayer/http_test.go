package datalayer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPClientRootHistory(t *testing.T) {
	var gotBust bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/stores/deadbeef/root-history", r.URL.Path)
		gotBust = r.URL.Query().Get("bust") == "true"
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"roots":["aa","bb"]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, time.Second)
	require.NoError(t, err)

	roots, err := c.RootHistory(context.Background(), "deadbeef", false)
	require.NoError(t, err)
	require.Equal(t, []string{"aa", "bb"}, roots)
	require.False(t, gotBust)

	_, err = c.RootHistory(context.Background(), "deadbeef", true)
	require.NoError(t, err)
	require.True(t, gotBust)
}

func TestHTTPClientPermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/stores/deadbeef/permissions/cafe", r.URL.Path)
		_, _ = w.Write([]byte(`{"allowed":true}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, time.Second)
	require.NoError(t, err)

	allowed, err := c.HasWritePermission(context.Background(), "deadbeef", "cafe")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestHTTPClientErrorsAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.RootHistory(context.Background(), "deadbeef", false)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, c.RegenerateManifest(context.Background(), "deadbeef"), ErrUnavailable)

	srv.Close()
	_, err = c.RootHistory(context.Background(), "deadbeef", false)
	require.ErrorIs(t, err, ErrUnavailable, "connection refused maps to ErrUnavailable")
}
