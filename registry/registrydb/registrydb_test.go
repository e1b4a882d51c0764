// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/energytag/gcregistry/internal/testcontext"
	"github.com/energytag/gcregistry/registry"
	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/events/boltstream"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/registrydb"
	"github.com/energytag/gcregistry/registry/storage"
	"github.com/energytag/gcregistry/registry/user"
)

// testEnv wires the services over sqlite stores and a bolt stream the way
// the peer does.
type testEnv struct {
	DB          registry.DB
	Stream      events.Stream
	Coordinator *cqrs.Coordinator

	Users        *user.Service
	Accounts     *account.Service
	Devices      *device.Service
	Meter        *meter.Service
	Certificates *certificate.Service
	Storage      *storage.Service
}

type localIDResolver struct {
	devices device.DB
}

func (r localIDResolver) ResolveLocalID(ctx context.Context, localID string) (int64, error) {
	dev, err := r.devices.GetByLocalIdentifier(ctx, localID)
	if err != nil {
		return 0, err
	}
	return dev.ID, nil
}

func newEnv(t *testing.T, ctx *testcontext.Context) *testEnv {
	log := zaptest.NewLogger(t)

	db, err := registrydb.Open(log,
		"sqlite3://"+ctx.File("write.db"),
		"sqlite3://"+ctx.File("read.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	require.NoError(t, db.MigrateToLatest(ctx, log))

	stream, err := boltstream.Open(ctx.File("events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, stream.Close()) })

	coordinator := cqrs.NewCoordinator(log, db.WriteStore(), db.ReadStore(), db.Implementation(), stream)

	users := user.NewService(log, db.Users(), coordinator, user.Config{
		TokenSecret:     "test-secret",
		TokenExpiration: time.Hour,
		APIKeyExpiry:    time.Hour,
		PasswordCost:    bcrypt.MinCost,
	})
	accounts := account.NewService(log, db.Accounts(), db.Users(), coordinator, nil)
	devices := device.NewService(log, db.Devices(), coordinator)
	meterService := meter.NewService(log, db.MeterReports(), db.Devices(), coordinator)
	manual := meter.NewManualClient(db.MeterReports(), localIDResolver{devices: db.Devices()})

	certificates := certificate.NewService(log, coordinator,
		db.Bundles(), db.Actions(), db.Metadata(), db.Devices(), accounts, manual,
		certificate.Config{GranularityHours: 1, CapacityMargin: 1.1, ExpiryYears: 2})
	storageService := storage.NewService(log, coordinator, db.Storage(), db.Bundles(), db.Devices())

	return &testEnv{
		DB:          db,
		Stream:      stream,
		Coordinator: coordinator,

		Users:        users,
		Accounts:     accounts,
		Devices:      devices,
		Meter:        meterService,
		Certificates: certificates,
		Storage:      storageService,
	}
}

func (env *testEnv) newUser(t *testing.T, ctx *testcontext.Context, name string, role user.Role) *user.User {
	u, err := env.Users.Register(ctx, name, name+"@example.com", "hunter2", role)
	require.NoError(t, err)
	return u
}

func (env *testEnv) newAccount(t *testing.T, ctx *testcontext.Context, name string, userIDs ...int64) *account.Account {
	acct := &account.Account{Name: name, UserIDs: userIDs}
	require.NoError(t, env.Accounts.Create(ctx, acct))
	return acct
}

func (env *testEnv) newDevice(t *testing.T, ctx *testcontext.Context, accountID int64, localID string, powerMW float64) *device.Device {
	dev := &device.Device{
		AccountID:             accountID,
		Name:                  "device " + localID,
		LocalDeviceIdentifier: localID,
		EnergySource:          string(certificate.SourceWind),
		TechnologyType:        device.TechnologyWindTurbine,
		PowerMW:               powerMW,
		OperationalDate:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.Devices.Register(ctx, dev))
	return dev
}

func (env *testEnv) newStorageDevice(t *testing.T, ctx *testcontext.Context, accountID int64, localID string) *device.Device {
	energy := 20.0
	dev := &device.Device{
		AccountID:             accountID,
		Name:                  "storage " + localID,
		LocalDeviceIdentifier: localID,
		EnergySource:          string(certificate.SourceBatteryStorage),
		TechnologyType:        device.TechnologyBatteryStorage,
		PowerMW:               5,
		EnergyMWh:             &energy,
		OperationalDate:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		IsStorage:             true,
	}
	require.NoError(t, env.Devices.Register(ctx, dev))
	return dev
}

func (env *testEnv) newMetadata(t *testing.T, ctx *testcontext.Context) *certificate.Metadata {
	meta := &certificate.Metadata{
		CountryOfIssuance:           "GB",
		ConnectedGridIdentification: "national-grid",
		IssuingBody:                 "test issuer",
		LegalStatus:                 "compliance",
		IssuancePurpose:             "disclosure",
		DisseminationLevel:          "public",
		IssueMarketZone:             "GB",
	}
	err := env.Coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return env.DB.Metadata().Create(ctx, tx, meta)
	})
	require.NoError(t, err)
	return meta
}

// issue submits one manual reading and runs the issuance pipeline over it.
func (env *testEnv) issue(t *testing.T, ctx *testcontext.Context, dev *device.Device, start time.Time, energyWh int64, metadataID int64) *certificate.Bundle {
	err := env.Meter.Submit(ctx, dev.ID, []*meter.Report{{
		IntervalStart: start,
		IntervalEnd:   start.Add(time.Hour),
		EnergyWh:      energyWh,
	}})
	require.NoError(t, err)

	issued, err := env.Certificates.IssueForDevice(ctx, dev, start, start.Add(time.Hour), metadataID)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	return issued[0]
}
