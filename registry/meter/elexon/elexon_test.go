// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package elexon_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/internal/testcontext"
	"github.com/energytag/gcregistry/registry/meter/elexon"
	"github.com/energytag/gcregistry/registry/regerr"
)

func TestReadings(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var gotPath, gotUnit, gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUnit = r.URL.Query().Get("bmUnit")
		gotFormat = r.URL.Query().Get("format")

		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose; the client sorts by interval start.
		_, _ = w.Write([]byte(`{"data": [
			{"bmUnit": "WIND-01", "timeFrom": "2024-04-01T11:00:00Z", "timeTo": "2024-04-01T12:00:00Z", "levelFrom": 4.5},
			{"bmUnit": "WIND-01", "timeFrom": "2024-04-01T10:00:00Z", "timeTo": "2024-04-01T11:00:00Z", "levelFrom": 5},
			{"bmUnit": "WIND-01", "timeFrom": "2024-04-01T12:00:00Z", "timeTo": "2024-04-01T12:00:00Z", "levelFrom": 3}
		]}`))
	}))
	defer server.Close()

	client := elexon.New(elexon.Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	from := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 13, 0, 0, 0, time.UTC)

	readings, err := client.Readings(ctx, from, to, "WIND-01")
	require.NoError(t, err)
	require.Equal(t, "/datasets/PN", gotPath)
	require.Equal(t, "WIND-01", gotUnit)
	require.Equal(t, "json", gotFormat)

	// The zero-length interval is dropped, the rest come back sorted.
	require.Len(t, readings, 2)
	require.Equal(t, int64(5_000_000), readings[0].EnergyWh)
	require.Equal(t, 10, readings[0].IntervalStart.Hour())
	require.Equal(t, int64(4_500_000), readings[1].EnergyWh)
	require.Equal(t, "WIND-01", readings[0].LocalID)
}

func TestReadingsUpstreamFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := elexon.New(elexon.Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	_, err := client.Readings(ctx, time.Now().Add(-time.Hour), time.Now(), "WIND-01")
	require.True(t, regerr.Upstream.Has(err))
}

func TestReadingsMalformedBody(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := elexon.New(elexon.Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	_, err := client.Readings(ctx, time.Now().Add(-time.Hour), time.Now(), "WIND-01")
	require.True(t, regerr.Upstream.Has(err))
}
