package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/edge/init", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"settings": {"target_soc_percent": 80},
			"tasks": [],
			"battery_configs": {"site-1-bess-1": {"host": "10.0.0.5"}},
			"register_map": {"registers": [{"name": "ems_power_set", "address": 47512}]}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.Init(context.Background())
	require.NoError(t, err)
	require.Equal(t, 80.0, resp.Settings["target_soc_percent"])
}

func TestValidateStateSurfacesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/edge/validate-state", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": false, "errors": ["setting export_cap_w missing"]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.ValidateState(context.Background())
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Len(t, resp.Errors, 1)
}

func TestGetReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Init(context.Background())
	require.Error(t, err)
}
