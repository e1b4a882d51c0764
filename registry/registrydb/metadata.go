// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"time"

	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
)

type metadata struct {
	db *registryDB
}

const metadataSelect = `SELECT id, country_of_issuance, connected_grid_identification,
	issuing_body, legal_status, issuance_purpose, support_received,
	quality_scheme_reference, dissemination_level, issue_market_zone, created_at
	FROM certificate_metadata`

func scanMetadata(scan func(dest ...interface{}) error) (*certificate.Metadata, error) {
	var m certificate.Metadata
	err := scan(&m.ID, &m.CountryOfIssuance, &m.ConnectedGridIdentification,
		&m.IssuingBody, &m.LegalStatus, &m.IssuancePurpose, &m.SupportReceived,
		&m.QualitySchemeReference, &m.DisseminationLevel, &m.IssueMarketZone, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create implements certificate.MetadataDB.
func (m *metadata) Create(ctx context.Context, tx *cqrs.Tx, meta *certificate.Metadata) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	id, err := tx.Insert(ctx, "certificate_metadata",
		[]string{
			"country_of_issuance", "connected_grid_identification", "issuing_body",
			"legal_status", "issuance_purpose", "support_received",
			"quality_scheme_reference", "dissemination_level", "issue_market_zone",
			"created_at",
		},
		meta.CountryOfIssuance, meta.ConnectedGridIdentification, meta.IssuingBody,
		meta.LegalStatus, meta.IssuancePurpose, meta.SupportReceived,
		meta.QualitySchemeReference, meta.DisseminationLevel, meta.IssueMarketZone,
		meta.CreatedAt,
	)
	if err != nil {
		return Error.Wrap(err)
	}
	meta.ID = id

	tx.Record(events.Event{
		EntityID:   id,
		EntityName: "IssuanceMetaData",
		EventType:  events.TypeCreate,
		AttributesAfter: map[string]interface{}{
			"country_of_issuance":           meta.CountryOfIssuance,
			"connected_grid_identification": meta.ConnectedGridIdentification,
			"issuing_body":                  meta.IssuingBody,
			"legal_status":                  meta.LegalStatus,
			"issuance_purpose":              meta.IssuancePurpose,
			"support_received":              meta.SupportReceived,
			"quality_scheme_reference":      meta.QualitySchemeReference,
			"dissemination_level":           meta.DisseminationLevel,
			"issue_market_zone":             meta.IssueMarketZone,
		},
		Timestamp: meta.CreatedAt,
	})
	return nil
}

// Get implements certificate.MetadataDB.
func (m *metadata) Get(ctx context.Context, id int64) (*certificate.Metadata, error) {
	row := m.db.read.QueryRowContext(ctx, m.db.rebind(metadataSelect+" WHERE id = ?"), id)
	meta, err := scanMetadata(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("metadata %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return meta, nil
}

// Latest implements certificate.MetadataDB.
func (m *metadata) Latest(ctx context.Context) (*certificate.Metadata, error) {
	row := m.db.read.QueryRowContext(ctx, metadataSelect+" ORDER BY id DESC LIMIT 1")
	meta, err := scanMetadata(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("no metadata registered")
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return meta, nil
}
