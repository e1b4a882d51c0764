// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"strconv"
	"strings"
	"time"

	"github.com/energytag/gcregistry/registry/regerr"
)

// NewIssuanceID builds the stable issuance identifier for a device and
// production starting interval. All descendants of a split share it.
func NewIssuanceID(deviceID int64, productionStart time.Time) string {
	return strconv.FormatInt(deviceID, 10) + "-" + productionStart.UTC().Format(time.RFC3339)
}

// ParseIssuanceID splits an issuance id back into its device id and
// production starting interval.
func ParseIssuanceID(issuanceID string) (deviceID int64, productionStart time.Time, err error) {
	device, rest, found := strings.Cut(issuanceID, "-")
	if !found {
		return 0, time.Time{}, regerr.Validation.New("invalid issuance id: %q", issuanceID)
	}

	deviceID, err = strconv.ParseInt(device, 10, 64)
	if err != nil {
		return 0, time.Time{}, regerr.Validation.New("invalid issuance id: %q", issuanceID)
	}

	productionStart, err = time.Parse(time.RFC3339, rest)
	if err != nil {
		return 0, time.Time{}, regerr.Validation.New("invalid issuance id: %q", issuanceID)
	}
	return deviceID, productionStart, nil
}
