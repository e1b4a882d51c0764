// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user"
)

// createCertificates triggers the issuance pipeline for one device, or for
// every device when no device id is given.
func (server *Server) createCertificates(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	var req struct {
		DeviceID   int64     `json:"device_id"`
		From       time.Time `json:"from_datetime"`
		To         time.Time `json:"to_datetime"`
		MetadataID int64     `json:"metadata_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	var issued []*certificate.Bundle
	if req.DeviceID != 0 {
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
		issued, err = server.services.Certificates.IssueForDevice(
			r.Context(), dev, req.From.UTC(), req.To.UTC(), req.MetadataID)
		if err != nil {
			server.renderError(w, r, err)
			return
		}
	} else {
		if actor.Role < user.RoleAdmin {
			server.renderError(w, r, regerr.Unauthorized.New(
				"registry-wide issuance requires the admin role"))
			return
		}
		issued, err = server.services.Certificates.IssueInRange(
			r.Context(), req.From.UTC(), req.To.UTC(), req.MetadataID)
		if err != nil {
			server.renderError(w, r, err)
			return
		}
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"issued":  len(issued),
		"bundles": issued,
	})
}

// action returns a handler processing one lifecycle action type.
func (server *Server) action(actionType certificate.ActionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestUser(r)
		if err != nil {
			server.renderError(w, r, err)
			return
		}

		var req certificate.ActionRequest
		if err := decodeJSON(r, &req); err != nil {
			server.renderError(w, r, err)
			return
		}
		req.Type = actionType

		action, err := server.services.Certificates.Process(r.Context(), actor, req)
		if err != nil {
			server.renderError(w, r, err)
			return
		}
		server.renderJSON(w, http.StatusAccepted, action)
	}
}

type queryRequest struct {
	SourceID     int64      `json:"source_id"`
	IssuanceIDs  []string   `json:"issuance_ids,omitempty"`
	PeriodStart  *time.Time `json:"certificate_period_start,omitempty"`
	PeriodEnd    *time.Time `json:"certificate_period_end,omitempty"`
	DeviceID     *int64     `json:"device_id,omitempty"`
	EnergySource *string    `json:"energy_source,omitempty"`
	Status       *string    `json:"certificate_bundle_status,omitempty"`
	Limit        int        `json:"limit,omitempty"`
}

func (server *Server) queryCertificates(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}

	err = server.services.Accounts.CheckAccess(r.Context(), actor, req.SourceID, user.RoleAuditUser)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	query := certificate.Query{
		SourceID:    req.SourceID,
		IssuanceIDs: req.IssuanceIDs,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DeviceID:    req.DeviceID,
		Limit:       req.Limit,
	}
	if req.EnergySource != nil {
		source := certificate.EnergySource(*req.EnergySource)
		query.EnergySource = &source
	}
	if req.Status != nil {
		status := certificate.Status(*req.Status)
		query.Status = &status
	}

	bundles, err := server.services.Certificates.QueryBundles(r.Context(), query)
	if err != nil {
		// Query constraint violations surface as unprocessable rather than
		// a plain bad request.
		if regerr.Kind(err) == "validation" {
			server.renderJSON(w, http.StatusUnprocessableEntity,
				errorBody{Kind: "validation", Message: err.Error()})
			return
		}
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusAccepted, map[string]interface{}{
		"granular_certificate_bundles": bundles,
		"total_certificate_volume":     totalVolume(bundles),
	})
}

func totalVolume(bundles []*certificate.Bundle) int64 {
	var total int64
	for _, bundle := range bundles {
		total += bundle.Quantity
	}
	return total
}

func (server *Server) getCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("invalid bundle id"))
		return
	}

	bundle, err := server.services.Certificates.GetBundle(r.Context(), id)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusOK, bundle)
}

// importCertificates accepts a multipart form with an account_id field, a
// device_id field naming the import device, and a csv file part.
func (server *Server) importCertificates(w http.ResponseWriter, r *http.Request) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		server.renderError(w, r, regerr.Validation.New("malformed multipart form: %v", err))
		return
	}
	accountID, err := strconv.ParseInt(r.FormValue("account_id"), 10, 64)
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("invalid account_id"))
		return
	}
	deviceID, err := strconv.ParseInt(r.FormValue("device_id"), 10, 64)
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("invalid device_id"))
		return
	}

	err = server.services.Accounts.CheckAccess(r.Context(), actor, accountID, user.RoleTradingUser)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	dev, err := server.services.Devices.Get(r.Context(), deviceID)
	if err != nil {
		server.renderError(w, r, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("missing csv file: %v", err))
		return
	}
	defer func() { _ = file.Close() }()

	created, rejected, err := server.services.Certificates.ImportCSV(r.Context(), accountID, dev, file)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"accepted": len(created),
		"rejected": rejected,
		"bundles":  created,
	})
}
