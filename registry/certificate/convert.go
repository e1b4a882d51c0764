// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/regerr"
)

// hoursInYear is the conversion granularity for annual certificates. Leap
// days are not modelled; the extra 24 hours of a leap year carry no bundles.
const hoursInYear = 8760

// AnnualCertificate is a coarse yearly certificate from a legacy registry
// that is converted into hourly bundles.
type AnnualCertificate struct {
	RegistryID   string
	Year         int
	TotalMWh     float64
	DeviceID     int64
	AccountID    int64
	MetadataID   int64
	EnergySource EnergySource
}

// ConvertAnnual converts a yearly certificate into hourly bundles. The
// distribution assigns a fraction of the annual energy to each hour; nil
// means uniform. All children share one issuance id derived from the device
// and the start of the year, their ranges continue from rangeStart without
// gaps, and their summed quantity differs from the annual total only by
// sub-certificate rounding.
func ConvertAnnual(cert AnnualCertificate, distribution []float64, rangeStart int64) ([]*Bundle, error) {
	if cert.TotalMWh <= 0 {
		return nil, regerr.Validation.New("annual certificate energy must be positive")
	}
	if distribution == nil {
		distribution = make([]float64, hoursInYear)
		for i := range distribution {
			distribution[i] = 1.0 / hoursInYear
		}
	}
	if len(distribution) != hoursInYear {
		return nil, regerr.Validation.New(
			"hourly distribution must cover %d hours, got %d", hoursInYear, len(distribution))
	}
	var sum float64
	for _, fraction := range distribution {
		if fraction < 0 {
			return nil, regerr.Validation.New("hourly distribution fractions must be non-negative")
		}
		sum += fraction
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, regerr.Validation.New("hourly distribution must sum to 1, got %g", sum)
	}

	yearStart := time.Date(cert.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	issuanceID := NewIssuanceID(cert.DeviceID, yearStart)
	totalWh := cert.TotalMWh * wattsInMegawatt

	bundles := make([]*Bundle, 0, hoursInYear)
	next := rangeStart
	for hour := 0; hour < hoursInYear; hour++ {
		quantity := int64(totalWh * distribution[hour])
		if quantity <= 0 {
			continue
		}
		start := yearStart.Add(time.Duration(hour) * time.Hour)

		bundle := &Bundle{
			IssuanceID: issuanceID,
			Status:     StatusActive,
			AccountID:  cert.AccountID,
			MetadataID: cert.MetadataID,

			RangeStart: next,
			RangeEnd:   next + quantity - 1,
			Quantity:   quantity,

			EnergyCarrier: CarrierElectricity,
			EnergySource:  cert.EnergySource,
			FaceValue:     1,

			IssuancePostConversion: true,

			DeviceID:        cert.DeviceID,
			ProductionStart: start,
			ProductionEnd:   start.Add(time.Hour),
			ExpiryDate:      yearStart.AddDate(2, 0, 0),

			IsStorage: false,
		}
		bundle.Hash = BundleHash(bundle, "")

		next = bundle.RangeEnd + 1
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}

// ConvertAndStore converts an annual certificate and commits the hourly
// bundles in one coordinator call, continuing the device's certificate
// counter.
func (s *Service) ConvertAndStore(ctx context.Context, cert AnnualCertificate, distribution []float64) (bundles []*Bundle, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		maxCertificateID, err := s.bundles.MaxCertificateID(ctx, tx, cert.DeviceID)
		if err != nil {
			return err
		}
		bundles, err = ConvertAnnual(cert, distribution, maxCertificateID+1)
		if err != nil {
			return err
		}
		return s.bundles.Create(ctx, tx, bundles...)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("converted annual certificate to hourly bundles",
		zap.String("registry_id", cert.RegistryID),
		zap.Int64("device_id", cert.DeviceID),
		zap.Int("bundles", len(bundles)))
	return bundles, nil
}
