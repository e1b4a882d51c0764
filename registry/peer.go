// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registry

import (
	"context"
	"net"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/meter/elexon"
	"github.com/energytag/gcregistry/registry/storage"
	"github.com/energytag/gcregistry/registry/user"
	"github.com/energytag/gcregistry/registry/web"
)

// Error is the default registry error class.
var Error = errs.Class("registry")

// DatabaseConfig holds the store URLs.
type DatabaseConfig struct {
	WriteURL string `help:"url of the authoritative write store" default:"sqlite3://gcregistry-write.db"`
	ReadURL  string `help:"url of the query read store" default:"sqlite3://gcregistry-read.db"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	Path string `help:"path of the bolt-backed event stream" default:"gcregistry-events.db"`
}

// CacheConfig holds whitelist cache settings.
type CacheConfig struct {
	Enabled bool          `help:"enable the redis whitelist cache" default:"false"`
	Address string        `help:"address of the redis server" default:"localhost:6379"`
	DB      int           `help:"redis database to use" default:"0"`
	TTL     time.Duration `help:"lifetime of cached admission decisions" default:"5m"`
}

// MeterConfig selects and configures the meter client.
type MeterConfig struct {
	Client string        `help:"meter client to issue from: manual or elexon" default:"manual"`
	Elexon elexon.Config `help:""`
}

// Config is the registry peer configuration.
type Config struct {
	Database    DatabaseConfig
	Events      EventsConfig
	Cache       CacheConfig
	Meter       MeterConfig
	Certificate certificate.Config
	Auth        user.Config
	Web         web.Config
}

// Peer is the registry process: stores, stream, services and the API
// server.
//
// architecture: Peer
type Peer struct {
	Log *zap.Logger
	DB  DB

	Events      events.Stream
	Coordinator *cqrs.Coordinator

	Cache *account.Cache

	Users        *user.Service
	Accounts     *account.Service
	Devices      *device.Service
	Meter        *meter.Service
	Certificates *certificate.Service
	Storage      *storage.Service

	Web struct {
		Listener net.Listener
		Server   *web.Server
	}
}

// localIDResolver adapts the device table to the meter client's lookup.
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

// New creates a registry peer from its composed dependencies.
func New(log *zap.Logger, db DB, stream events.Stream, config Config) (*Peer, error) {
	peer := &Peer{
		Log:    log,
		DB:     db,
		Events: stream,
	}

	peer.Coordinator = cqrs.NewCoordinator(log.Named("cqrs"),
		db.WriteStore(), db.ReadStore(), db.Implementation(), stream)

	if config.Cache.Enabled {
		cache, err := account.NewCache(config.Cache.Address, config.Cache.DB, config.Cache.TTL)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		peer.Cache = cache
	}

	peer.Users = user.NewService(log.Named("users"), db.Users(), peer.Coordinator, config.Auth)
	peer.Accounts = account.NewService(log.Named("accounts"),
		db.Accounts(), db.Users(), peer.Coordinator, peer.Cache)
	peer.Devices = device.NewService(log.Named("devices"), db.Devices(), peer.Coordinator)
	peer.Meter = meter.NewService(log.Named("meter"),
		db.MeterReports(), db.Devices(), peer.Coordinator)

	var meterClient meter.Client
	switch config.Meter.Client {
	case "elexon":
		meterClient = elexon.New(config.Meter.Elexon)
	case "", "manual":
		meterClient = meter.NewManualClient(db.MeterReports(), localIDResolver{devices: db.Devices()})
	default:
		return nil, Error.New("unknown meter client %q", config.Meter.Client)
	}

	peer.Certificates = certificate.NewService(log.Named("certificates"),
		peer.Coordinator, db.Bundles(), db.Actions(), db.Metadata(),
		db.Devices(), peer.Accounts, meterClient, config.Certificate)
	peer.Storage = storage.NewService(log.Named("storage"),
		peer.Coordinator, db.Storage(), db.Bundles(), db.Devices())

	listener, err := net.Listen("tcp", config.Web.Address)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	peer.Web.Listener = listener
	peer.Web.Server = web.NewServer(log.Named("web"), listener, web.Services{
		Users:        peer.Users,
		Accounts:     peer.Accounts,
		Certificates: peer.Certificates,
		Storage:      peer.Storage,
		Devices:      peer.Devices,
		Meter:        peer.Meter,
	})

	return peer, nil
}

// Run runs the peer until the context is canceled.
func (peer *Peer) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCancel(peer.Web.Server.Run(ctx))
	})
	return group.Wait()
}

func ignoreCancel(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	var group errs.Group
	if peer.Web.Server != nil {
		group.Add(peer.Web.Server.Close())
	}
	if peer.Cache != nil {
		group.Add(peer.Cache.Close())
	}
	if peer.Events != nil {
		group.Add(peer.Events.Close())
	}
	return Error.Wrap(group.Err())
}
