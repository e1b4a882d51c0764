// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"time"

	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user"
)

func (server *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	if actor.Role < user.RoleTradingUser {
		server.renderError(w, r, regerr.Unauthorized.New(
			"creating accounts requires at least the trading user role"))
		return
	}

	var req struct {
		Name    string  `json:"account_name"`
		UserIDs []int64 `json:"user_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	acct := &account.Account{Name: req.Name, UserIDs: req.UserIDs}
	if err := server.services.Accounts.Create(r.Context(), acct); err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           acct.ID,
		"account_name": acct.Name,
		"user_ids":     acct.UserIDs,
	})
}

type whitelistRequest struct {
	SourceAccountID int64 `json:"source_account_id"`
	TargetAccountID int64 `json:"target_account_id"`
}

func (server *Server) addWhitelist(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	var req whitelistRequest
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	// Only the target account admits transfers into itself.
	err = server.services.Accounts.CheckAccess(r.Context(), actor, req.TargetAccountID, user.RoleTradingUser)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	if err := server.services.Accounts.Whitelist(r.Context(), req.SourceAccountID, req.TargetAccountID); err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, req)
}

func (server *Server) removeWhitelist(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	var req whitelistRequest
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	err = server.services.Accounts.CheckAccess(r.Context(), actor, req.TargetAccountID, user.RoleTradingUser)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	if err := server.services.Accounts.RemoveWhitelist(r.Context(), req.SourceAccountID, req.TargetAccountID); err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusOK, req)
}

func (server *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	var req struct {
		AccountID             int64    `json:"account_id"`
		Name                  string   `json:"device_name"`
		LocalDeviceIdentifier string   `json:"local_device_identifier"`
		EnergySource          string   `json:"energy_source"`
		TechnologyType        string   `json:"technology_type"`
		PowerMW               float64  `json:"capacity"`
		EnergyMWh             *float64 `json:"energy_mwh,omitempty"`
		OperationalDate       string   `json:"operational_date"`
		IsStorage             bool     `json:"is_storage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	err = server.services.Accounts.CheckAccess(r.Context(), actor, req.AccountID, user.RoleProductionUser)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	operational, err := time.Parse(time.RFC3339, req.OperationalDate)
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("invalid operational_date: %v", err))
		return
	}

	dev := &device.Device{
		AccountID:             req.AccountID,
		Name:                  req.Name,
		LocalDeviceIdentifier: req.LocalDeviceIdentifier,
		EnergySource:          req.EnergySource,
		TechnologyType:        device.TechnologyType(req.TechnologyType),
		PowerMW:               req.PowerMW,
		EnergyMWh:             req.EnergyMWh,
		OperationalDate:       operational.UTC(),
		IsStorage:             req.IsStorage,
	}
	if err := server.services.Devices.Register(r.Context(), dev); err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                      dev.ID,
		"device_name":             dev.Name,
		"local_device_identifier": dev.LocalDeviceIdentifier,
	})
}

func (server *Server) submitMeterReports(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	var req struct {
		DeviceID int64 `json:"device_id"`
		Readings []struct {
			IntervalStart time.Time `json:"interval_start"`
			IntervalEnd   time.Time `json:"interval_end"`
			EnergyWh      int64     `json:"interval_usage"`
		} `json:"readings"`
	}
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	dev, err := server.services.Devices.Get(r.Context(), req.DeviceID)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	err = server.services.Accounts.CheckAccess(r.Context(), actor, dev.AccountID, user.RoleProductionUser)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	reports := make([]*meter.Report, 0, len(req.Readings))
	for _, reading := range req.Readings {
		reports = append(reports, &meter.Report{
			DeviceID:      req.DeviceID,
			IntervalStart: reading.IntervalStart.UTC(),
			IntervalEnd:   reading.IntervalEnd.UTC(),
			EnergyWh:      reading.EnergyWh,
		})
	}
	if err := server.services.Meter.Submit(r.Context(), req.DeviceID, reports); err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]int{"submitted": len(reports)})
}
