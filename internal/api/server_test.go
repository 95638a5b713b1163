package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsly/newsly/internal/config"
)

func TestServerShutdownWhileStarting(t *testing.T) {
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, Deps{})

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, Deps{})
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.ErrorIs(t, srv.ListenAndServe(), http.ErrServerClosed)
}
