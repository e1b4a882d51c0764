// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/energytag/gcregistry/registry/regerr"
)

func TestStatusForKind(t *testing.T) {
	for kind, status := range map[string]int{
		"validation":   http.StatusBadRequest,
		"unauthorized": http.StatusUnauthorized,
		"not_found":    http.StatusNotFound,
		"state":        http.StatusConflict,
		"integrity":    http.StatusConflict,
		"upstream":     http.StatusBadGateway,
		"internal":     http.StatusInternalServerError,
	} {
		require.Equal(t, status, statusForKind(kind), kind)
	}
}

func TestRenderError(t *testing.T) {
	server := &Server{log: zaptest.NewLogger(t)}

	t.Run("kinds pass their message through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/certificate/transfer", nil)
		server.renderError(rec, req, regerr.State.New("can only transfer active certificates"))

		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "state", body.Kind)
		require.Contains(t, body.Message, "can only transfer active certificates")
	})

	t.Run("internal errors hide their cause", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/certificate/transfer", nil)
		server.renderError(rec, req, regerr.Internal.New("read store commit failed: disk full"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "internal", body.Kind)
		require.Equal(t, "internal server error", body.Message)
		require.NotContains(t, rec.Body.String(), "disk full")
	})
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"source_id": 7}`))
	var payload struct {
		SourceID int64 `json:"source_id"`
	}
	require.NoError(t, decodeJSON(req, &payload))
	require.Equal(t, int64(7), payload.SourceID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{source_id`))
	err := decodeJSON(req, &payload)
	require.True(t, regerr.Validation.Has(err))
}
