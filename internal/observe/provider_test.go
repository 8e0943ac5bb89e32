package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitProviderServesPrivateRegistry(t *testing.T) {
	ctx := context.Background()

	first, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, first.Shutdown(ctx)) })

	// A second provider in the same process must not collide on registration.
	second, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, second.Shutdown(ctx)) })

	second.Metrics.RecordOutcome(ctx, "completed")

	srv := httptest.NewServer(second.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
	require.Contains(t, string(body), "parley_pipeline_outcomes")
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	require.NoError(t, p.Shutdown(context.Background()))
}
