// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user"
)

var (
	mon = monkit.Package()

	// Error is the default certificate error class.
	Error = errs.Class("certificate")
)

// Service orchestrates issuance, lifecycle actions and queries over
// certificate bundles.
//
// architecture: Service
type Service struct {
	log      *zap.Logger
	cqrs     *cqrs.Coordinator
	bundles  Bundles
	actions  Actions
	metadata MetadataDB
	devices  device.DB
	accounts *account.Service
	meter    meter.Client
	config   Config
}

// NewService creates a certificate service.
func NewService(log *zap.Logger, coordinator *cqrs.Coordinator, bundles Bundles, actions Actions,
	metadata MetadataDB, devices device.DB, accounts *account.Service, meterClient meter.Client,
	config Config) *Service {
	return &Service{
		log:      log,
		cqrs:     coordinator,
		bundles:  bundles,
		actions:  actions,
		metadata: metadata,
		devices:  devices,
		accounts: accounts,
		meter:    meterClient,
		config:   config,
	}
}

// Process runs a lifecycle action through the state machine. The action is
// recorded with request and completion timestamps whether or not it
// succeeds.
func (s *Service) Process(ctx context.Context, actor *user.User, req ActionRequest) (action *Action, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	required := user.RoleTradingUser
	if req.Type == ActionWithdraw {
		required = user.RoleAdmin
	}
	if err := s.accounts.CheckAccess(ctx, actor, req.SourceID, required); err != nil {
		return nil, err
	}

	action = &Action{
		Type:        req.Type,
		SourceID:    req.SourceID,
		UserID:      actor.ID,
		BundleIDs:   req.BundleIDs,
		Quantity:    req.Quantity,
		Percentage:  req.Percentage,
		Beneficiary: req.Beneficiary,
		RequestedAt: time.Now().UTC(),
	}
	if req.Type == ActionTransfer {
		target := req.TargetID
		action.TargetID = &target
	}

	procErr := s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		if err := s.apply(ctx, tx, req); err != nil {
			return err
		}
		action.CompletedAt = time.Now().UTC()
		action.Succeeded = true
		return s.actions.Create(ctx, tx, action)
	})
	if procErr != nil {
		action.CompletedAt = time.Now().UTC()
		action.Succeeded = false
		recordErr := s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
			return s.actions.Create(ctx, tx, action)
		})
		if recordErr != nil {
			s.log.Error("failed to record unsuccessful action", zap.Error(recordErr))
		}
		return action, procErr
	}
	return action, nil
}

// apply dispatches the action inside the coordinator transaction.
func (s *Service) apply(ctx context.Context, tx *cqrs.Tx, req ActionRequest) error {
	bundles, err := s.bundles.GetForUpdate(ctx, tx, req.BundleIDs)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		return regerr.NotFound.New("no certificates found with the given bundle ids")
	}

	switch req.Type {
	case ActionTransfer:
		return s.transfer(ctx, tx, req, bundles)
	case ActionCancel:
		return s.cancel(ctx, tx, req, bundles)
	case ActionClaim:
		return s.claim(ctx, tx, req, bundles)
	case ActionWithdraw:
		return s.withdraw(ctx, tx, req, bundles)
	case ActionLock:
		return s.setStatus(ctx, tx, req, bundles, StatusLocked)
	case ActionReserve:
		return s.setStatus(ctx, tx, req, bundles, StatusReserved)
	default:
		return regerr.Validation.New("unsupported action type %q", req.Type)
	}
}

// selectTargets applies the partial-selection rule: any targeted bundle
// larger than the selector is split first and the selector-sized child is
// acted on.
func (s *Service) selectTargets(ctx context.Context, tx *cqrs.Tx, req ActionRequest, bundles []*Bundle) ([]*Bundle, error) {
	if req.Quantity == nil && req.Percentage == nil {
		return bundles, nil
	}

	targets := make([]*Bundle, 0, len(bundles))
	for _, bundle := range bundles {
		size := req.selectorFor(bundle)
		if bundle.Quantity <= size {
			targets = append(targets, bundle)
			continue
		}

		child1, child2, err := SplitBundle(bundle, size)
		if err != nil {
			return nil, err
		}

		split, deleted := StatusBundleSplit, true
		err = s.bundles.Update(ctx, tx, bundle.ID, BundleUpdate{Status: &split, IsDeleted: &deleted})
		if err != nil {
			return nil, err
		}
		if err := s.bundles.Create(ctx, tx, child1, child2); err != nil {
			return nil, err
		}
		targets = append(targets, child1)
	}
	return targets, nil
}

func (s *Service) transfer(ctx context.Context, tx *cqrs.Tx, req ActionRequest, bundles []*Bundle) error {
	exists, err := s.accounts.Exists(ctx, req.TargetID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !exists {
		return regerr.NotFound.New("target account does not exist: %d", req.TargetID)
	}

	allowed, err := s.accounts.MayTransfer(ctx, req.SourceID, req.TargetID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !allowed {
		return regerr.State.New(
			"target account %d has not whitelisted the source account %d for transfer",
			req.TargetID, req.SourceID)
	}

	for _, bundle := range bundles {
		if bundle.Status != StatusActive {
			return regerr.State.New("can only transfer active certificates, found %q", bundle.Status)
		}
	}

	targets, err := s.selectTargets(ctx, tx, req, bundles)
	if err != nil {
		return err
	}
	for _, bundle := range targets {
		target := req.TargetID
		if err := s.bundles.Update(ctx, tx, bundle.ID, BundleUpdate{AccountID: &target}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) cancel(ctx context.Context, tx *cqrs.Tx, req ActionRequest, bundles []*Bundle) error {
	for _, bundle := range bundles {
		if bundle.Status != StatusActive && bundle.Status != StatusReserved {
			return regerr.State.New(
				"certificates must be in active or reserved status to cancel, found %q", bundle.Status)
		}
	}

	beneficiary := req.Beneficiary
	if beneficiary == "" {
		holder, err := s.accounts.Get(ctx, req.SourceID)
		if err != nil {
			return Error.Wrap(err)
		}
		beneficiary = holder.Name
	}

	targets, err := s.selectTargets(ctx, tx, req, bundles)
	if err != nil {
		return err
	}
	cancelled := StatusCancelled
	for _, bundle := range targets {
		err := s.bundles.Update(ctx, tx, bundle.ID, BundleUpdate{
			Status:      &cancelled,
			Beneficiary: &beneficiary,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) claim(ctx context.Context, tx *cqrs.Tx, req ActionRequest, bundles []*Bundle) error {
	for _, bundle := range bundles {
		if bundle.Status != StatusCancelled {
			return regerr.State.New("can only claim cancelled certificates, found %q", bundle.Status)
		}
	}

	targets, err := s.selectTargets(ctx, tx, req, bundles)
	if err != nil {
		return err
	}
	claimed := StatusClaimed
	for _, bundle := range targets {
		if err := s.bundles.Update(ctx, tx, bundle.ID, BundleUpdate{Status: &claimed}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) withdraw(ctx context.Context, tx *cqrs.Tx, req ActionRequest, bundles []*Bundle) error {
	targets, err := s.selectTargets(ctx, tx, req, bundles)
	if err != nil {
		return err
	}
	withdrawn := StatusWithdrawn
	for _, bundle := range targets {
		if err := s.bundles.Update(ctx, tx, bundle.ID, BundleUpdate{Status: &withdrawn}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, tx *cqrs.Tx, req ActionRequest, bundles []*Bundle, status Status) error {
	targets, err := s.selectTargets(ctx, tx, req, bundles)
	if err != nil {
		return err
	}
	for _, bundle := range targets {
		status := status
		if err := s.bundles.Update(ctx, tx, bundle.ID, BundleUpdate{Status: &status}); err != nil {
			return err
		}
	}
	return nil
}

// Split splits a bundle outside an action, persisting the parent
// transition and both children in one coordinator call.
func (s *Service) Split(ctx context.Context, bundleID, size int64) (child1, child2 *Bundle, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		parents, err := s.bundles.GetForUpdate(ctx, tx, []int64{bundleID})
		if err != nil {
			return err
		}
		if len(parents) == 0 {
			return regerr.NotFound.New("bundle %d not found", bundleID)
		}
		parent := parents[0]

		child1, child2, err = SplitBundle(parent, size)
		if err != nil {
			return err
		}

		split, deleted := StatusBundleSplit, true
		err = s.bundles.Update(ctx, tx, parent.ID, BundleUpdate{Status: &split, IsDeleted: &deleted})
		if err != nil {
			return err
		}
		return s.bundles.Create(ctx, tx, child1, child2)
	})
	if err != nil {
		return nil, nil, err
	}
	return child1, child2, nil
}

// QueryBundles validates and runs a bundle query against the read store.
func (s *Service) QueryBundles(ctx context.Context, query Query) (bundles []*Bundle, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := query.Validate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.bundles.Query(ctx, query)
}

// GetBundle loads a single bundle from the read store.
func (s *Service) GetBundle(ctx context.Context, id int64) (bundle *Bundle, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.bundles.Get(ctx, id)
}

// ListActions returns the action audit trail for an account.
func (s *Service) ListActions(ctx context.Context, sourceID int64, limit int) (actions []*Action, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.actions.List(ctx, sourceID, limit)
}
