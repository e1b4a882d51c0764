// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"

	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/storage"
	"github.com/energytag/gcregistry/registry/user"
)

// storageDevice resolves the multipart device_id field and verifies the
// actor may validate storage flows for its account.
func (server *Server) storageDevice(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actor, err := requestUser(r)
	if err != nil {
		server.renderError(w, r, err)
		return 0, false
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		server.renderError(w, r, regerr.Validation.New("malformed multipart form: %v", err))
		return 0, false
	}
	deviceID, err := strconv.ParseInt(r.FormValue("device_id"), 10, 64)
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("invalid device_id"))
		return 0, false
	}

	dev, err := server.services.Devices.Get(r.Context(), deviceID)
	if err != nil {
		server.renderError(w, r, err)
		return 0, false
	}
	// Storage validators may submit for any account; other roles must be
	// linked to the device's account.
	if actor.Role != user.RoleStorageValidator && actor.Role != user.RoleAdmin {
		err = server.services.Accounts.CheckAccess(r.Context(), actor, dev.AccountID, user.RoleTradingUser)
		if err != nil {
			server.renderError(w, r, err)
			return 0, false
		}
	}
	return deviceID, true
}

func (server *Server) submitStorageRecords(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := server.storageDevice(w, r)
	if !ok {
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("missing csv file: %v", err))
		return
	}
	defer func() { _ = file.Close() }()

	records, err := storage.ParseRecordsCSV(file)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	if err := server.services.Storage.SubmitRecords(r.Context(), deviceID, records); err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"submitted": len(records),
		"records":   records,
	})
}

func (server *Server) submitAllocations(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := server.storageDevice(w, r)
	if !ok {
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		server.renderError(w, r, regerr.Validation.New("missing csv file: %v", err))
		return
	}
	defer func() { _ = file.Close() }()

	rows, err := storage.ParseAllocationsCSV(file)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	allocations, err := server.services.Storage.Allocate(r.Context(), deviceID, rows)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusCreated, map[string]interface{}{
		"allocated":   len(allocations),
		"allocations": allocations,
	})
}

func (server *Server) issueSDGCs(w http.ResponseWriter, r *http.Request) {
	if _, err := requestUser(r); err != nil {
		server.renderError(w, r, err)
		return
	}

	var req struct {
		AllocatedRecordIDs []int64 `json:"allocated_record_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		server.renderError(w, r, err)
		return
	}
	if len(req.AllocatedRecordIDs) == 0 {
		server.renderError(w, r, regerr.Validation.New("no allocated record ids provided"))
		return
	}

	minted, err := server.services.Storage.IssueSDGCs(r.Context(), req.AllocatedRecordIDs)
	if err != nil {
		server.renderError(w, r, err)
		return
	}
	server.renderJSON(w, http.StatusOK, minted)
}
