// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package web implements the registry's public HTTP API.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/storage"
	"github.com/energytag/gcregistry/registry/user"
)

// Error is the default web error class.
var Error = errs.Class("registry web")

// Config defines the configuration for the registry HTTP server.
type Config struct {
	Address string `help:"address to serve the registry api on" default:":8000"`
}

// Services collects the domain services the API fronts.
type Services struct {
	Users        *user.Service
	Accounts     *account.Service
	Certificates *certificate.Service
	Storage      *storage.Service
	Devices      *device.Service
	Meter        *meter.Service
}

// Server provides the registry HTTP API.
//
// architecture: Endpoint
type Server struct {
	log *zap.Logger

	listener net.Listener
	server   http.Server
	mux      *mux.Router

	services Services
}

// NewServer creates a server serving the registry API on the listener.
func NewServer(log *zap.Logger, listener net.Listener, services Services) *Server {
	server := &Server{
		log:      log,
		listener: listener,
		services: services,
	}

	server.mux = mux.NewRouter()
	server.server.Handler = server.mux

	root := server.mux.PathPrefix("/api/v1").Subrouter()

	// Credential endpoints carry their own authentication.
	auth := root.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", server.register).Methods(http.MethodPost)
	auth.HandleFunc("/login", server.login).Methods(http.MethodPost)

	authed := root.NewRoute().Subrouter()
	authed.Use(server.requireUser)

	authed.HandleFunc("/auth/api_key", server.issueAPIKey).Methods(http.MethodPost)

	cert := authed.PathPrefix("/certificate").Subrouter()
	cert.HandleFunc("/create", server.createCertificates).Methods(http.MethodPost)
	cert.HandleFunc("/transfer", server.action(certificate.ActionTransfer)).Methods(http.MethodPost)
	cert.HandleFunc("/cancel", server.action(certificate.ActionCancel)).Methods(http.MethodPost)
	cert.HandleFunc("/claim", server.action(certificate.ActionClaim)).Methods(http.MethodPost)
	cert.HandleFunc("/withdraw", server.action(certificate.ActionWithdraw)).Methods(http.MethodPost)
	cert.HandleFunc("/reserve", server.action(certificate.ActionReserve)).Methods(http.MethodPost)
	cert.HandleFunc("/lock", server.action(certificate.ActionLock)).Methods(http.MethodPost)
	cert.HandleFunc("/query", server.queryCertificates).Methods(http.MethodPost)
	cert.HandleFunc("/import", server.importCertificates).Methods(http.MethodPost)
	cert.HandleFunc("/{id:[0-9]+}", server.getCertificate).Methods(http.MethodGet)

	store := authed.PathPrefix("/storage").Subrouter()
	store.HandleFunc("/storage_records", server.submitStorageRecords).Methods(http.MethodPost)
	store.HandleFunc("/allocated_storage_records", server.submitAllocations).Methods(http.MethodPost)
	store.HandleFunc("/issue_sdgcs", server.issueSDGCs).Methods(http.MethodPost)

	acct := authed.PathPrefix("/account").Subrouter()
	acct.HandleFunc("/create", server.createAccount).Methods(http.MethodPost)
	acct.HandleFunc("/whitelist", server.addWhitelist).Methods(http.MethodPost)
	acct.HandleFunc("/whitelist", server.removeWhitelist).Methods(http.MethodDelete)

	dev := authed.PathPrefix("/device").Subrouter()
	dev.HandleFunc("/create", server.createDevice).Methods(http.MethodPost)

	authed.HandleFunc("/measurement/submit", server.submitMeterReports).Methods(http.MethodPost)

	return server
}

// Run starts the server until the context is canceled.
func (server *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if err == http.ErrServerClosed {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close closes server and underlying listener.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}
