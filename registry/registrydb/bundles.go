// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/internal/dbutil"
	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
)

type bundles struct {
	db *registryDB
}

var bundleColumns = []string{
	"issuance_id", "hash", "status", "account_id", "metadata_id",
	"range_start", "range_end", "quantity", "beneficiary",
	"energy_carrier", "energy_source", "face_value",
	"issuance_post_conversion", "emissions_factor", "emissions_factor_source",
	"device_id", "production_start", "production_end", "expiry_date",
	"is_storage", "sdr_allocation_id", "storage_efficiency_factor",
	"is_deleted", "created_at",
}

const bundleSelect = `SELECT id, issuance_id, hash, status, account_id, metadata_id,
	range_start, range_end, quantity, beneficiary,
	energy_carrier, energy_source, face_value,
	issuance_post_conversion, emissions_factor, emissions_factor_source,
	device_id, production_start, production_end, expiry_date,
	is_storage, sdr_allocation_id, storage_efficiency_factor,
	is_deleted, created_at
	FROM certificate_bundles`

func bundleValues(b *certificate.Bundle) []interface{} {
	return []interface{}{
		b.IssuanceID, b.Hash, string(b.Status), b.AccountID, b.MetadataID,
		b.RangeStart, b.RangeEnd, b.Quantity, b.Beneficiary,
		string(b.EnergyCarrier), string(b.EnergySource), b.FaceValue,
		b.IssuancePostConversion, b.EmissionsFactor, b.EmissionsFactorSource,
		b.DeviceID, b.ProductionStart, b.ProductionEnd, b.ExpiryDate,
		b.IsStorage, b.SDRAllocationID, b.StorageEfficiencyFactor,
		b.IsDeleted, b.CreatedAt,
	}
}

func scanBundle(scan func(dest ...interface{}) error) (*certificate.Bundle, error) {
	var (
		b          certificate.Bundle
		status     string
		carrier    string
		source     string
		allocation sql.NullInt64
		efficiency sql.NullFloat64
	)
	err := scan(
		&b.ID, &b.IssuanceID, &b.Hash, &status, &b.AccountID, &b.MetadataID,
		&b.RangeStart, &b.RangeEnd, &b.Quantity, &b.Beneficiary,
		&carrier, &source, &b.FaceValue,
		&b.IssuancePostConversion, &b.EmissionsFactor, &b.EmissionsFactorSource,
		&b.DeviceID, &b.ProductionStart, &b.ProductionEnd, &b.ExpiryDate,
		&b.IsStorage, &allocation, &efficiency,
		&b.IsDeleted, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = certificate.Status(status)
	b.EnergyCarrier = certificate.EnergyCarrier(carrier)
	b.EnergySource = certificate.EnergySource(source)
	if allocation.Valid {
		b.SDRAllocationID = &allocation.Int64
	}
	if efficiency.Valid {
		b.StorageEfficiencyFactor = &efficiency.Float64
	}
	return &b, nil
}

// bundleAttributes is the event attribute map for a full bundle row.
func bundleAttributes(b *certificate.Bundle) map[string]interface{} {
	attrs := map[string]interface{}{
		"issuance_id":               b.IssuanceID,
		"hash":                      b.Hash,
		"certificate_bundle_status": string(b.Status),
		"account_id":                b.AccountID,
		"metadata_id":               b.MetadataID,
		"certificate_bundle_id_range_start": b.RangeStart,
		"certificate_bundle_id_range_end":   b.RangeEnd,
		"bundle_quantity":                   b.Quantity,
		"beneficiary":                       b.Beneficiary,
		"energy_carrier":                    string(b.EnergyCarrier),
		"energy_source":                     string(b.EnergySource),
		"face_value":                        b.FaceValue,
		"issuance_post_energy_carrier_conversion": b.IssuancePostConversion,
		"device_id":                    b.DeviceID,
		"production_starting_interval": b.ProductionStart,
		"production_ending_interval":   b.ProductionEnd,
		"expiry_datestamp":             b.ExpiryDate,
		"is_storage":                   b.IsStorage,
		"is_deleted":                   b.IsDeleted,
	}
	if b.SDRAllocationID != nil {
		attrs["sdr_allocation_id"] = *b.SDRAllocationID
	}
	if b.StorageEfficiencyFactor != nil {
		attrs["storage_efficiency_factor"] = *b.StorageEfficiencyFactor
	}
	return attrs
}

// Create implements certificate.Bundles.
func (b *bundles) Create(ctx context.Context, tx *cqrs.Tx, list ...*certificate.Bundle) error {
	now := time.Now().UTC()
	for _, bundle := range list {
		if bundle.CreatedAt.IsZero() {
			bundle.CreatedAt = now
		}
		id, err := tx.Insert(ctx, "certificate_bundles", bundleColumns, bundleValues(bundle)...)
		if err != nil {
			return Error.Wrap(err)
		}
		bundle.ID = id
		tx.Record(events.Event{
			EntityID:        id,
			EntityName:      certificate.EntityName,
			EventType:       events.TypeCreate,
			AttributesAfter: bundleAttributes(bundle),
			Timestamp:       now,
		})
	}
	return nil
}

// Update implements certificate.Bundles.
func (b *bundles) Update(ctx context.Context, tx *cqrs.Tx, id int64, update certificate.BundleUpdate) error {
	current, err := b.getInTx(ctx, tx, id)
	if err != nil {
		return err
	}

	after := update.Attributes()
	if len(after) == 0 {
		return nil
	}
	before := map[string]interface{}{}
	currentAttrs := bundleAttributes(current)
	for key := range after {
		before[key] = currentAttrs[key]
	}

	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.AccountID != nil {
		set("account_id", *update.AccountID)
	}
	if update.Beneficiary != nil {
		set("beneficiary", *update.Beneficiary)
	}
	if update.SDRAllocationID != nil {
		set("sdr_allocation_id", *update.SDRAllocationID)
	}
	if update.StorageEfficiencyFactor != nil {
		set("storage_efficiency_factor", *update.StorageEfficiencyFactor)
	}
	if update.IsDeleted != nil {
		set("is_deleted", *update.IsDeleted)
	}
	args = append(args, id)

	err = tx.Exec(ctx, "UPDATE certificate_bundles SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return Error.Wrap(err)
	}

	tx.Record(events.Event{
		EntityID:         id,
		EntityName:       certificate.EntityName,
		EventType:        events.TypeUpdate,
		AttributesBefore: before,
		AttributesAfter:  after,
		Timestamp:        time.Now().UTC(),
	})
	return nil
}

// Delete implements certificate.Bundles.
func (b *bundles) Delete(ctx context.Context, tx *cqrs.Tx, ids ...int64) error {
	now := time.Now().UTC()
	for _, id := range ids {
		err := tx.Exec(ctx, `UPDATE certificate_bundles SET is_deleted = ? WHERE id = ?`, true, id)
		if err != nil {
			return Error.Wrap(err)
		}
		tx.Record(events.Event{
			EntityID:         id,
			EntityName:       certificate.EntityName,
			EventType:        events.TypeDelete,
			AttributesBefore: map[string]interface{}{"is_deleted": false},
			AttributesAfter:  map[string]interface{}{"is_deleted": true},
			Timestamp:        now,
		})
	}
	return nil
}

func (b *bundles) getInTx(ctx context.Context, tx *cqrs.Tx, id int64) (*certificate.Bundle, error) {
	row := tx.QueryRow(ctx, bundleSelect+" WHERE id = ?", id)
	bundle, err := scanBundle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("bundle %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return bundle, nil
}

// GetForUpdate implements certificate.Bundles.
func (b *bundles) GetForUpdate(ctx context.Context, tx *cqrs.Tx, ids []int64) (list []*certificate.Bundle, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := bundleSelect + " WHERE is_deleted = ? AND id IN (" + strings.Join(placeholders, ", ") + ")"
	if b.db.impl == dbutil.Postgres {
		query += " FOR UPDATE"
	}

	rows, err := tx.Query(ctx, query, append([]interface{}{false}, args...)...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		bundle, err := scanBundle(rows.Scan)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, bundle)
	}
	return list, Error.Wrap(rows.Err())
}

// MaxCertificateID implements certificate.Bundles.
func (b *bundles) MaxCertificateID(ctx context.Context, tx *cqrs.Tx, deviceID int64) (int64, error) {
	var max sql.NullInt64
	err := tx.QueryRow(ctx,
		`SELECT MAX(range_end) FROM certificate_bundles WHERE device_id = ? AND status != ?`,
		deviceID, string(certificate.StatusWithdrawn)).Scan(&max)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return max.Int64, nil
}

// MaxProductionEnd implements certificate.Bundles.
func (b *bundles) MaxProductionEnd(ctx context.Context, tx *cqrs.Tx, deviceID int64) (time.Time, bool, error) {
	var max sql.NullTime
	err := tx.QueryRow(ctx,
		`SELECT MAX(production_end) FROM certificate_bundles WHERE device_id = ? AND status != ?`,
		deviceID, string(certificate.StatusWithdrawn)).Scan(&max)
	if err != nil {
		return time.Time{}, false, Error.Wrap(err)
	}
	return max.Time, max.Valid, nil
}

// Get implements certificate.Bundles.
func (b *bundles) Get(ctx context.Context, id int64) (*certificate.Bundle, error) {
	row := b.db.read.QueryRowContext(ctx, b.db.rebind(bundleSelect+" WHERE id = ?"), id)
	bundle, err := scanBundle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("bundle %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return bundle, nil
}

// Query implements certificate.Bundles.
func (b *bundles) Query(ctx context.Context, query certificate.Query) (list []*certificate.Bundle, err error) {
	var (
		where = []string{"is_deleted = ?", "account_id = ?"}
		args  = []interface{}{false, query.SourceID}
	)
	if len(query.IssuanceIDs) > 0 {
		placeholders := make([]string, len(query.IssuanceIDs))
		for i, id := range query.IssuanceIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, "issuance_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if query.PeriodStart != nil {
		where = append(where, "production_start >= ?")
		args = append(args, *query.PeriodStart)
	}
	if query.PeriodEnd != nil {
		where = append(where, "production_start < ?")
		args = append(args, *query.PeriodEnd)
	}
	if query.DeviceID != nil {
		where = append(where, "device_id = ?")
		args = append(args, *query.DeviceID)
	}
	if query.EnergySource != nil {
		where = append(where, "energy_source = ?")
		args = append(args, string(*query.EnergySource))
	}
	if query.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*query.Status))
	}

	stmt := bundleSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY production_start DESC"
	if query.Limit > 0 {
		stmt += " LIMIT " + strconv.Itoa(query.Limit)
	}

	rows, err := b.db.read.QueryContext(ctx, b.db.rebind(stmt), args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		bundle, err := scanBundle(rows.Scan)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, bundle)
	}
	return list, Error.Wrap(rows.Err())
}

// Ranges implements certificate.Bundles.
func (b *bundles) Ranges(ctx context.Context, deviceID int64) (ranges []certificate.Range, err error) {
	rows, err := b.db.read.QueryContext(ctx, b.db.rebind(
		`SELECT range_start, range_end FROM certificate_bundles WHERE device_id = ? AND is_deleted = ?`),
		deviceID, false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		var r certificate.Range
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, Error.Wrap(err)
		}
		ranges = append(ranges, r)
	}
	return ranges, Error.Wrap(rows.Err())
}
