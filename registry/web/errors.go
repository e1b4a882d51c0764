// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/energytag/gcregistry/registry/regerr"
)

// errorBody is the stable error envelope rendered to clients.
type errorBody struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "state", "integrity":
		return http.StatusConflict
	case "upstream":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes the error envelope. Internal errors hide their cause
// behind a generic message; the detail goes to the log.
func (server *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	kind := regerr.Kind(err)
	message := err.Error()
	if kind == "internal" {
		server.log.Error("internal error",
			zap.String("path", r.URL.Path), zap.Error(err))
		message = "internal server error"
	}
	server.renderJSON(w, statusForKind(kind), errorBody{Kind: kind, Message: message})
}

func (server *Server) renderJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		server.log.Error("failed to write json response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, value interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(value); err != nil {
		return regerr.Validation.New("malformed request body: %v", err)
	}
	return nil
}
