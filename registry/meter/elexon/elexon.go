// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package elexon implements the meter client against the Elexon physical
// data API.
package elexon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/regerr"
)

var (
	mon = monkit.Package()

	// Error is the elexon client error class.
	Error = errs.Class("elexon")
)

// DefaultBaseURL is the production Elexon Insights endpoint.
const DefaultBaseURL = "https://data.elexon.co.uk/bmrs/api/v1"

// Config holds elexon client settings.
type Config struct {
	BaseURL string        `help:"base url of the elexon api" default:"https://data.elexon.co.uk/bmrs/api/v1"`
	Timeout time.Duration `help:"request timeout for elexon calls" default:"30s"`
}

// Client fetches metered volumes per BM unit from Elexon.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates an elexon meter client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: config.Timeout},
		baseURL: config.BaseURL,
	}
}

// Name implements meter.Client.
func (client *Client) Name() string { return "ElexonClient" }

type physicalVolume struct {
	BMUnit   string    `json:"bmUnit"`
	TimeFrom time.Time `json:"timeFrom"`
	TimeTo   time.Time `json:"timeTo"`
	LevelMW  float64   `json:"levelFrom"`
}

type physicalResponse struct {
	Data []physicalVolume `json:"data"`
}

// Readings implements meter.Client against the physical metered-volume
// endpoint. The request deadline is inherited from ctx.
func (client *Client) Readings(ctx context.Context, from, to time.Time, localID string) (readings []meter.Reading, err error) {
	defer mon.Task()(&ctx)(&err)

	endpoint := client.baseURL + "/datasets/PN?" + url.Values{
		"bmUnit":               {localID},
		"from":                 {from.UTC().Format(time.RFC3339)},
		"to":                   {to.UTC().Format(time.RFC3339)},
		"format":               {"json"},
		"settlementPeriodFrom": {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	resp, err := client.http.Do(req)
	if err != nil {
		return nil, regerr.Upstream.Wrap(Error.Wrap(err))
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	if resp.StatusCode != http.StatusOK {
		return nil, regerr.Upstream.New("elexon responded with status %d", resp.StatusCode)
	}

	var payload physicalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, regerr.Upstream.Wrap(Error.Wrap(err))
	}

	for _, volume := range payload.Data {
		hours := volume.TimeTo.Sub(volume.TimeFrom).Hours()
		if hours <= 0 {
			continue
		}
		readings = append(readings, meter.Reading{
			LocalID:       volume.BMUnit,
			IntervalStart: volume.TimeFrom.UTC(),
			IntervalEnd:   volume.TimeTo.UTC(),
			EnergyWh:      int64(volume.LevelMW * 1e6 * hours),
		})
	}
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].IntervalStart.Before(readings[j].IntervalStart)
	})
	return readings, nil
}
