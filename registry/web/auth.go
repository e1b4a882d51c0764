// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user"
)

type contextKey int

const userContextKey contextKey = iota

// requireUser resolves the request credential, either a bearer token or an
// api key, and stores the user on the context.
func (server *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			actor *user.User
			err   error
		)
		switch {
		case r.Header.Get("X-API-Key") != "":
			actor, err = server.services.Users.AuthorizeAPIKey(r.Context(), r.Header.Get("X-API-Key"))
		case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			actor, err = server.services.Users.Authorize(r.Context(), token)
		default:
			err = regerr.Unauthorized.New("missing credentials")
		}
		if err != nil {
			server.renderError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), userContextKey, actor)))
	})
}

func requestUser(r *http.Request) (*user.User, error) {
	actor, ok := r.Context().Value(userContextKey).(*user.User)
	if !ok || actor == nil {
		return nil, regerr.Unauthorized.New("no authenticated user")
	}
	return actor, nil
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func roleFromString(s string) (user.Role, error) {
	for _, role := range []user.Role{
		user.RoleStorageValidator, user.RoleAuditUser, user.RoleTradingUser,
		user.RoleProductionUser, user.RoleAdmin,
	} {
		if role.String() == s {
			return role, nil
		}
	}
	return 0, regerr.Validation.New("unknown role %q", s)
}

func (server *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}
	role, err := roleFromString(req.Role)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	created, err := server.services.Users.Register(r.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    created.ID,
		"name":  created.Name,
		"email": created.Email,
		"role":  created.Role.String(),
	})
}

func (server *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	token, err := server.services.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (server *Server) issueAPIKey(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	key, err := server.services.Users.IssueAPIKey(r.Context(), actor.ID)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]string{"api_key": key})
}
