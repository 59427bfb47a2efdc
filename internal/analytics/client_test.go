package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enms-voice/internal/common/cache"
	"enms-voice/internal/common/config"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/intent"
)

func newTestClient(t *testing.T, baseURL string, c *cache.Cache) *Client {
	t.Helper()
	return NewClient(config.AnalyticsConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    2000,
		MaxRetries: 3,
		CacheTTL:   60000,
	}, c, logger.NewTestLogger(t))
}

func machinesHandler(hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"machines": []map[string]string{
				{"id": "m1", "name": "Compressor-1"},
				{"id": "m2", "name": "Boiler-1"},
			},
		})
	}
}

func TestFetchMachineNames(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(machinesHandler(&hits))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	names, err := c.FetchMachineNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Compressor-1", "Boiler-1"}, names)
}

func TestFetchMachineNamesUsesCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(machinesHandler(&hits))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rc := cache.New(cache.Options{Address: mr.Addr()})
	defer rc.Close()

	c := newTestClient(t, srv.URL, rc)
	ctx := context.Background()

	first, err := c.FetchMachineNames(ctx)
	require.NoError(t, err)
	second, err := c.FetchMachineNames(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Invalidation forces the next fetch back to the API.
	c.InvalidateMachineCache(ctx)
	_, err = c.FetchMachineNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchMachineNamesCacheExpiry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(machinesHandler(&hits))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rc := cache.New(cache.Options{Address: mr.Addr()})
	defer rc.Close()

	c := newTestClient(t, srv.URL, rc)
	ctx := context.Background()

	_, err := c.FetchMachineNames(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = c.FetchMachineNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestDispatchRouting(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	tests := []struct {
		name      string
		in        *intent.Intent
		wantPath  string
		wantQuery map[string]string
	}{
		{
			name: "short term forecast",
			in: &intent.Intent{
				Type: intent.TypeShortTermForecast,
				Entities: intent.Entities{
					Machine:   "Compressor-1",
					TimeRange: &intent.TimeRange{Amount: 4, Unit: intent.UnitHour, Relative: intent.RelativeNext},
				},
			},
			wantPath: "/api/forecast/short-term",
			wantQuery: map[string]string{
				"machine": "Compressor-1", "amount": "4", "unit": "hour", "relative": "next",
			},
		},
		{
			name: "energy query with named range",
			in: &intent.Intent{
				Type: intent.TypeEnergyQuery,
				Entities: intent.Entities{
					Machine:   "Boiler-1",
					Metric:    "energy",
					TimeRange: &intent.TimeRange{Named: "yesterday"},
				},
			},
			wantPath: "/api/analytics/energy",
			wantQuery: map[string]string{
				"machine": "Boiler-1", "metric": "energy", "range": "yesterday",
			},
		},
		{
			name:      "ranking carries limit",
			in:        &intent.Intent{Type: intent.TypeRanking, Entities: intent.Entities{Limit: 5}},
			wantPath:  "/api/analytics/ranking",
			wantQuery: map[string]string{"limit": "5"},
		},
		{
			name:      "factory overview",
			in:        &intent.Intent{Type: intent.TypeFactoryOverview},
			wantPath:  "/api/analytics/overview",
			wantQuery: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := c.Dispatch(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, true, payload["ok"])
			assert.Equal(t, tt.wantPath, gotPath)
			for k, v := range tt.wantQuery {
				require.Contains(t, gotQuery, k)
				assert.Equal(t, v, gotQuery[k][0])
			}
		})
	}
}

func TestDispatchRejectsNonDispatchable(t *testing.T) {
	c := newTestClient(t, "http://unused", nil)

	_, err := c.Dispatch(context.Background(), &intent.Intent{Type: intent.TypeClarificationNeeded})
	assert.Error(t, err)
}

func TestRetryOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	payload, err := c.Dispatch(context.Background(), &intent.Intent{Type: intent.TypeFactoryOverview})
	require.NoError(t, err)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Dispatch(context.Background(), &intent.Intent{Type: intent.TypeFactoryOverview})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestExpiredContextShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := c.Dispatch(ctx, &intent.Intent{Type: intent.TypeFactoryOverview})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
