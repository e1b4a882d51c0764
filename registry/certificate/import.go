// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/regerr"
)

// RowError reports one rejected import row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// importColumns is the expected CSV header for bundle imports.
var importColumns = []string{
	"issuance_id",
	"bundle_quantity",
	"certificate_bundle_id_range_start",
	"certificate_bundle_id_range_end",
	"energy_carrier",
	"energy_source",
	"face_value",
	"production_starting_interval",
	"production_ending_interval",
	"expiry_datestamp",
	"country_of_issuance",
	"connected_grid_identification",
	"issuing_body",
	"legal_status",
	"issuance_purpose",
	"support_received",
	"quality_scheme_reference",
	"dissemination_level",
	"issue_market_zone",
}

// ImportCSV imports externally issued bundles from a CSV stream into the
// given account, attributing them to the import device. Rows that fail
// validation are reported without aborting the batch; accepted rows commit
// in a single coordinator call. Metadata rows are deduplicated across the
// batch.
func (s *Service) ImportCSV(ctx context.Context, accountID int64, importDev *device.Device, r io.Reader) (created []*Bundle, rejected []RowError, err error) {
	defer mon.Task()(&ctx)(&err)

	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, regerr.Validation.New("import file has no header row: %v", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[name] = i
	}
	for _, name := range importColumns {
		if _, ok := columns[name]; !ok {
			return nil, nil, regerr.Validation.New("import file is missing column %q", name)
		}
	}

	existing, err := s.bundles.Ranges(ctx, importDev.ID)
	if err != nil {
		return nil, nil, err
	}

	var (
		accepted     []*Bundle
		acceptedMeta []*Metadata
		metadata     []*Metadata
		metaByKey    = map[string]*Metadata{}
	)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rejected = append(rejected, RowError{Line: line, Message: err.Error()})
			continue
		}

		field := func(name string) string { return record[columns[name]] }

		bundle, meta, err := parseImportRow(field)
		if err != nil {
			rejected = append(rejected, RowError{Line: line, Message: err.Error()})
			continue
		}
		bundle.AccountID = accountID
		bundle.DeviceID = importDev.ID

		hours := bundle.ProductionEnd.Sub(bundle.ProductionStart).Hours()
		if hours <= 0 {
			hours = s.config.GranularityHours
		}
		err = ValidateImportedBundle(bundle, existing, importDev.PowerMW, hours, s.config.CapacityMargin)
		if err != nil {
			rejected = append(rejected, RowError{Line: line, Message: err.Error()})
			continue
		}

		key := meta.Key()
		if known, ok := metaByKey[key]; ok {
			meta = known
		} else {
			metaByKey[key] = meta
			metadata = append(metadata, meta)
		}

		bundle.Hash = BundleHash(bundle, "")
		existing = append(existing, Range{Start: bundle.RangeStart, End: bundle.RangeEnd})
		accepted = append(accepted, bundle)
		acceptedMeta = append(acceptedMeta, meta)
	}

	if len(accepted) == 0 {
		return nil, rejected, nil
	}

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		for _, meta := range metadata {
			if err := s.metadata.Create(ctx, tx, meta); err != nil {
				return err
			}
		}
		// Metadata ids are assigned at insert; pin them onto the bundles
		// before the bundle rows go in.
		for i, bundle := range accepted {
			bundle.MetadataID = acceptedMeta[i].ID
		}
		return s.bundles.Create(ctx, tx, accepted...)
	})
	if err != nil {
		return nil, rejected, err
	}

	s.log.Info("imported certificate bundles",
		zap.Int64("account_id", accountID),
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(rejected)))
	return accepted, rejected, nil
}

func parseImportRow(field func(string) string) (*Bundle, *Metadata, error) {
	quantity, err := strconv.ParseInt(field("bundle_quantity"), 10, 64)
	if err != nil {
		return nil, nil, regerr.Validation.New("invalid bundle_quantity: %v", err)
	}
	rangeStart, err := strconv.ParseInt(field("certificate_bundle_id_range_start"), 10, 64)
	if err != nil {
		return nil, nil, regerr.Validation.New("invalid certificate_bundle_id_range_start: %v", err)
	}
	rangeEnd, err := strconv.ParseInt(field("certificate_bundle_id_range_end"), 10, 64)
	if err != nil {
		return nil, nil, regerr.Validation.New("invalid certificate_bundle_id_range_end: %v", err)
	}
	faceValue, err := strconv.ParseInt(field("face_value"), 10, 64)
	if err != nil || faceValue <= 0 {
		return nil, nil, regerr.Validation.New("invalid face_value %q", field("face_value"))
	}
	productionStart, err := time.Parse(time.RFC3339, field("production_starting_interval"))
	if err != nil {
		return nil, nil, regerr.Validation.New("invalid production_starting_interval: %v", err)
	}
	productionEnd, err := time.Parse(time.RFC3339, field("production_ending_interval"))
	if err != nil {
		return nil, nil, regerr.Validation.New("invalid production_ending_interval: %v", err)
	}
	if !productionStart.Before(productionEnd) {
		return nil, nil, regerr.Validation.New("production interval start must precede its end")
	}
	expiry, err := time.Parse(time.RFC3339, field("expiry_datestamp"))
	if err != nil {
		return nil, nil, regerr.Validation.New("invalid expiry_datestamp: %v", err)
	}

	bundle := &Bundle{
		IssuanceID: field("issuance_id"),
		Status:     StatusActive,

		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Quantity:   quantity,

		EnergyCarrier: EnergyCarrier(field("energy_carrier")),
		EnergySource:  EnergySource(field("energy_source")),
		FaceValue:     faceValue,

		ProductionStart: productionStart.UTC(),
		ProductionEnd:   productionEnd.UTC(),
		ExpiryDate:      expiry.UTC(),
	}
	if bundle.IssuanceID == "" {
		return nil, nil, regerr.Validation.New("issuance_id is required")
	}

	meta := &Metadata{
		CountryOfIssuance:           field("country_of_issuance"),
		ConnectedGridIdentification: field("connected_grid_identification"),
		IssuingBody:                 field("issuing_body"),
		LegalStatus:                 field("legal_status"),
		IssuancePurpose:             field("issuance_purpose"),
		SupportReceived:             field("support_received"),
		QualitySchemeReference:      field("quality_scheme_reference"),
		DisseminationLevel:          field("dissemination_level"),
		IssueMarketZone:             field("issue_market_zone"),
	}
	return bundle, meta, nil
}
