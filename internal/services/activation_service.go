package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/registry"
	"licensegate/internal/store"
)

// Caller-facing success messages. Rejection messages live with their
// sentinel errors in the errors package.
const (
	msgFirstUse       = "Login successful. Your device has been registered."
	msgLogin          = "Login successful."
	msgLegacyRelogin  = "Already registered. Login successful."
	msgLegacyEnrolled = "Legacy registration successful. Automatic license issued."
)

// ActivationService is the verification and enrollment engine. Both
// operations are evaluated against a fresh request-scoped snapshot of the
// two registries; nothing is cached between calls.
type ActivationService interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	VerifyLegacy(ctx context.Context, req LegacyVerifyRequest) (*VerifyResult, error)
}

// VerifyRequest carries the three required verification parameters.
// Presence validation happens at the transport boundary; the engine assumes
// all fields are non-empty.
type VerifyRequest struct {
	LicenseKey string
	Username   string
	HWID       string
}

// LegacyVerifyRequest carries the legacy enrollment parameters. The license
// key here is the client-proposed auto key, not an issued one.
type LegacyVerifyRequest struct {
	LicenseKey string
	Username   string
	HWID       string
}

// VerifyResult is the successful outcome of either operation.
type VerifyResult struct {
	FirstUse bool
	Legacy   bool
	Message  string
}

type activationService struct {
	store    store.Client
	keysDoc  string
	usersDoc string
	logger   *slog.Logger
	metrics  *ActivationMetrics
	now      func() time.Time
}

// NewActivationService creates the engine. Document names identify the two
// registries inside the store; metrics may be nil when observability is
// disabled.
func NewActivationService(st store.Client, keysDoc, usersDoc string, metrics *ActivationMetrics, logger *slog.Logger) ActivationService {
	return &activationService{
		store:    st,
		keysDoc:  keysDoc,
		usersDoc: usersDoc,
		logger:   logger.With(slog.String("service", "activation")),
		metrics:  metrics,
		now:      time.Now,
	}
}

// snapshot is the request-scoped pair of decoded registries plus the
// version tokens they were read with.
type snapshot struct {
	keys         *registry.KeyRegistry
	keysVersion  string
	users        *registry.UserRegistry
	usersVersion string
}

// fetchSnapshot reads both registry documents in parallel. Failure of
// either read aborts the request; there is no partial snapshot.
func (s *activationService) fetchSnapshot(ctx context.Context) (*snapshot, error) {
	var snap snapshot

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := s.store.Read(ctx, s.keysDoc)
		if err != nil {
			return fmt.Errorf("key registry: %w", err)
		}
		keys, err := registry.DecodeKeyRegistry(doc.Content)
		if err != nil {
			return err
		}
		snap.keys = keys
		snap.keysVersion = doc.Version
		return nil
	})
	g.Go(func() error {
		doc, err := s.store.Read(ctx, s.usersDoc)
		if err != nil {
			return fmt.Errorf("user registry: %w", err)
		}
		users, err := registry.DecodeUserRegistry(doc.Content)
		if err != nil {
			return err
		}
		snap.users = users
		snap.usersVersion = doc.Version
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Verify implements the normal verification flow: ban checks, key lookup,
// key status, then device binding. First use for a (key, username) pair
// enrolls the device; a later call with a different device is rejected and
// never rebinds.
func (s *activationService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	start := s.now()
	result, err := s.verify(ctx, req)
	s.recordVerify(ctx, "verify", result, err, s.now().Sub(start))
	return result, err
}

func (s *activationService) verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	snap, err := s.fetchSnapshot(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "registry snapshot failed",
			slog.String("error", err.Error()))
		return nil, apierrors.ServerError(err)
	}

	if snap.keys.IsHWIDBanned(req.HWID) {
		s.logger.WarnContext(ctx, "banned device rejected",
			slog.String("hwid", req.HWID))
		return nil, apierrors.ErrDeviceBanned
	}
	if snap.users.IsUserBanned(req.Username) {
		s.logger.WarnContext(ctx, "banned user rejected",
			slog.String("username", req.Username))
		return nil, apierrors.ErrUserBanned
	}

	key := snap.keys.FindKey(req.LicenseKey)
	if key == nil {
		s.logger.InfoContext(ctx, "unknown license key",
			slog.String("username", req.Username))
		return nil, apierrors.ErrInvalidKey
	}
	if !key.IsActive() {
		s.logger.InfoContext(ctx, "inactive license key",
			slog.String("username", req.Username),
			slog.String("status", key.Status))
		return nil, apierrors.ErrKeyInactive
	}

	record := snap.users.FindActivation(req.LicenseKey, req.Username)
	if record == nil {
		return s.enrollFirstUse(ctx, snap, req)
	}

	if record.HWID != req.HWID {
		s.logger.WarnContext(ctx, "device mismatch",
			slog.String("username", req.Username))
		return nil, apierrors.ErrDeviceMismatch
	}

	// Known device: refresh last_login. A failed bookkeeping write does not
	// fail the login itself; the verification already succeeded.
	record.LastLogin = s.timestamp()
	if content, err := snap.users.Encode(); err != nil {
		s.logger.WarnContext(ctx, "last_login encode failed; login still accepted",
			slog.String("error", err.Error()))
	} else if err := s.store.Write(ctx, s.usersDoc, content, snap.usersVersion, "Login: "+req.Username); err != nil {
		s.logger.WarnContext(ctx, "last_login update failed; login still accepted",
			slog.String("username", req.Username),
			slog.String("error", err.Error()))
	}

	return &VerifyResult{FirstUse: false, Message: msgLogin}, nil
}

// enrollFirstUse appends a new activation record bound to the presented
// device and persists both registries. The user registry is written first,
// then the key registry; the pair is not transactional, so a failure of the
// second write leaves one document updated and one stale. That window is
// recoverable by the caller retrying the whole request.
func (s *activationService) enrollFirstUse(ctx context.Context, snap *snapshot, req VerifyRequest) (*VerifyResult, error) {
	now := s.timestamp()
	snap.users.AppendUser(registry.ActivationRecord{
		LicenseKey:   req.LicenseKey,
		Owner:        req.Username,
		HWID:         req.HWID,
		RegisteredAt: now,
		LastLogin:    now,
	})
	snap.keys.SyncActiveKeys(len(snap.users.Users))

	usersContent, err := snap.users.Encode()
	if err != nil {
		return nil, apierrors.ServerError(err)
	}
	keysContent, err := snap.keys.Encode()
	if err != nil {
		return nil, apierrors.ServerError(err)
	}

	if err := s.store.Write(ctx, s.usersDoc, usersContent, snap.usersVersion, "New user: "+req.Username); err != nil {
		s.recordConflict(ctx, err)
		s.logger.ErrorContext(ctx, "enrollment write failed",
			slog.String("username", req.Username),
			slog.String("error", err.Error()))
		return nil, apierrors.ServerError(err)
	}
	if err := s.store.Write(ctx, s.keysDoc, keysContent, snap.keysVersion, "Stats update"); err != nil {
		s.recordConflict(ctx, err)
		s.logger.ErrorContext(ctx, "stats write failed after user enrollment; key registry is stale",
			slog.String("username", req.Username),
			slog.String("error", err.Error()))
		return nil, apierrors.ServerError(err)
	}

	s.logger.InfoContext(ctx, "device enrolled",
		slog.String("username", req.Username))

	return &VerifyResult{FirstUse: true, Message: msgFirstUse}, nil
}

// VerifyLegacy implements one-time migration for users predating issued
// keys. The username is globally unique here: one record per owner, ever.
func (s *activationService) VerifyLegacy(ctx context.Context, req LegacyVerifyRequest) (*VerifyResult, error) {
	start := s.now()
	result, err := s.verifyLegacy(ctx, req)
	s.recordVerify(ctx, "verify_legacy", result, err, s.now().Sub(start))
	return result, err
}

func (s *activationService) verifyLegacy(ctx context.Context, req LegacyVerifyRequest) (*VerifyResult, error) {
	snap, err := s.fetchSnapshot(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "registry snapshot failed",
			slog.String("error", err.Error()))
		return nil, apierrors.ServerError(err)
	}

	if snap.keys.IsHWIDBanned(req.HWID) {
		return nil, apierrors.ErrDeviceBanned
	}
	if snap.users.IsUserBanned(req.Username) {
		return nil, apierrors.ErrUserBanned
	}

	if record := snap.users.FindOwner(req.Username); record != nil {
		if record.HWID == req.HWID {
			// Idempotent re-login, no writes.
			return &VerifyResult{FirstUse: false, Message: msgLegacyRelogin}, nil
		}
		s.logger.WarnContext(ctx, "legacy user bound to another device",
			slog.String("username", req.Username))
		return nil, apierrors.ErrOwnerRegistered
	}

	// Fresh legacy user: synthesize an active key and bind the device.
	snap.keys.AppendKey(registry.LicenseKey{Key: req.LicenseKey, Status: registry.StatusActive})
	snap.keys.RecountStats()

	now := s.timestamp()
	snap.users.AppendUser(registry.ActivationRecord{
		LicenseKey:   req.LicenseKey,
		Owner:        req.Username,
		HWID:         req.HWID,
		RegisteredAt: now,
		LastLogin:    now,
		Legacy:       true,
	})

	keysContent, err := snap.keys.Encode()
	if err != nil {
		return nil, apierrors.ServerError(err)
	}
	usersContent, err := snap.users.Encode()
	if err != nil {
		return nil, apierrors.ServerError(err)
	}

	if err := s.store.Write(ctx, s.keysDoc, keysContent, snap.keysVersion, "Legacy user auto-key: "+req.Username); err != nil {
		s.recordConflict(ctx, err)
		s.logger.ErrorContext(ctx, "legacy key write failed",
			slog.String("username", req.Username),
			slog.String("error", err.Error()))
		return nil, apierrors.ServerError(err)
	}
	if err := s.store.Write(ctx, s.usersDoc, usersContent, snap.usersVersion, "Legacy user: "+req.Username); err != nil {
		s.recordConflict(ctx, err)
		s.logger.ErrorContext(ctx, "legacy user write failed after key write; user registry is stale",
			slog.String("username", req.Username),
			slog.String("error", err.Error()))
		return nil, apierrors.ServerError(err)
	}

	s.logger.InfoContext(ctx, "legacy user enrolled",
		slog.String("username", req.Username))

	return &VerifyResult{FirstUse: true, Legacy: true, Message: msgLegacyEnrolled}, nil
}

// timestamp formats the engine clock as the store's timestamp string.
func (s *activationService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
