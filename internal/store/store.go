// Package store is the concurrency-safe operation surface over a lifecycle
// registry. Every named operation runs under a per-name lock, so operations on
// one secret serialize while different secrets proceed in parallel.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/kvemu/internal/lifecycle"
	"github.com/systmms/kvemu/internal/logging"
)

// Operation names used for logging and metrics.
const (
	OpSet          = "set"
	OpGet          = "get"
	OpGetVersion   = "get_version"
	OpListVersions = "list_versions"
	OpDelete       = "delete"
	OpGetDeleted   = "get_deleted"
	OpPurge        = "purge"
	OpRecover      = "recover"
	OpUpdate       = "update_properties"
	OpPurgeExpired = "purge_expired"
)

// Store owns one lifecycle registry.
type Store struct {
	reg        *lifecycle.Registry
	locks      *nameLocks
	now        func() time.Time
	newVersion func() string
	logger     *logging.Logger
	metrics    *Metrics
}

// Option configures a Store.
type Option func(*settings)

type settings struct {
	now        func() time.Time
	retention  time.Duration
	newVersion func() string
	logger     *logging.Logger
	metrics    *Metrics
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithRetention sets how long deleted secrets remain recoverable.
func WithRetention(d time.Duration) Option {
	return func(s *settings) { s.retention = d }
}

// WithRecoverableDays is WithRetention expressed in whole days.
func WithRecoverableDays(days int) Option {
	return WithRetention(time.Duration(days) * 24 * time.Hour)
}

// WithVersionFunc replaces the version id generator.
func WithVersionFunc(fn func() string) Option {
	return func(s *settings) { s.newVersion = fn }
}

// WithLogger sets the logger. Secret values only reach it redacted.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics attaches collectors created by NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	cfg := settings{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.now == nil {
		cfg.now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.newVersion == nil {
		cfg.newVersion = NewVersionID
	}
	if cfg.logger == nil {
		cfg.logger = logging.Discard()
	}

	s := &Store{
		reg:        lifecycle.NewRegistry(cfg.retention, cfg.now),
		locks:      newNameLocks(),
		now:        cfg.now,
		newVersion: cfg.newVersion,
		logger:     cfg.logger,
		metrics:    cfg.metrics,
	}
	s.metrics.watchPartitions(s.reg.Counts)
	return s
}

// NewVersionID returns a 32 character lowercase hex identifier.
func NewVersionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SetSecret writes value as a new version of name. props may be nil; when
// given, its Name must be empty or equal to name, and its content type, tags
// and enabled flag seed the new version.
func (s *Store) SetSecret(ctx context.Context, name, value string, props *lifecycle.Properties) (lifecycle.Record, error) {
	if props != nil && props.Name != "" && props.Name != name {
		s.metrics.recordOperation(OpSet, OutcomeInvalidArgument)
		return lifecycle.Record{}, fmt.Errorf("%w: properties name %q does not match %q",
			lifecycle.ErrInvalidArgument, props.Name, name)
	}

	var out lifecycle.Record
	err := s.run(ctx, OpSet, name, func() error {
		rec := lifecycle.NewRecord(name, s.newVersion(), value, s.now())
		if props != nil {
			if props.ContentType != nil {
				rec.ContentType = *props.ContentType
			}
			for k, v := range props.Tags {
				rec.Tags[k] = v
			}
			if props.Enabled != nil {
				rec.Enabled = *props.Enabled
			}
		}
		var err error
		out, err = s.reg.SetActive(rec)
		if err == nil {
			s.logger.Debug("set secret %s version %s value %s", name, out.Version, logging.Secret(value))
		}
		return err
	})
	return out, err
}

// GetSecret returns the current version of an active secret.
func (s *Store) GetSecret(ctx context.Context, name string) (lifecycle.Record, error) {
	var out lifecycle.Record
	err := s.run(ctx, OpGet, name, func() error {
		var err error
		out, err = s.reg.GetActive(name)
		return err
	})
	return out, err
}

// GetSecretVersion returns one version of an active secret. An empty version
// selects the current one.
func (s *Store) GetSecretVersion(ctx context.Context, name, version string) (lifecycle.Record, error) {
	if version == "" {
		return s.GetSecret(ctx, name)
	}
	var out lifecycle.Record
	err := s.run(ctx, OpGetVersion, name, func() error {
		var err error
		out, err = s.reg.GetActiveVersion(name, version)
		return err
	})
	return out, err
}

// ListVersions returns every version of an active secret, oldest first.
func (s *Store) ListVersions(ctx context.Context, name string) ([]lifecycle.Record, error) {
	var out []lifecycle.Record
	err := s.run(ctx, OpListVersions, name, func() error {
		var err error
		out, err = s.reg.Versions(name)
		return err
	})
	return out, err
}

// DeleteSecret soft-deletes name and returns the deleted snapshot.
func (s *Store) DeleteSecret(ctx context.Context, name string) (lifecycle.Record, error) {
	var out lifecycle.Record
	err := s.run(ctx, OpDelete, name, func() error {
		var err error
		out, err = s.reg.Delete(name)
		if err == nil {
			s.logger.Debug("deleted secret %s, purge scheduled %s", name, out.ScheduledPurgeOn.Format(time.RFC3339))
		}
		return err
	})
	return out, err
}

// GetDeletedSecret returns the current version of a soft-deleted secret.
func (s *Store) GetDeletedSecret(ctx context.Context, name string) (lifecycle.Record, error) {
	var out lifecycle.Record
	err := s.run(ctx, OpGetDeleted, name, func() error {
		var err error
		out, err = s.reg.GetDeleted(name)
		return err
	})
	return out, err
}

// PurgeDeletedSecret permanently removes a soft-deleted secret.
func (s *Store) PurgeDeletedSecret(ctx context.Context, name string) error {
	return s.run(ctx, OpPurge, name, func() error {
		err := s.reg.Purge(name)
		if err == nil {
			s.logger.Debug("purged secret %s", name)
		}
		return err
	})
}

// RecoverDeletedSecret restores a soft-deleted secret and returns its current
// version.
func (s *Store) RecoverDeletedSecret(ctx context.Context, name string) (lifecycle.Record, error) {
	var out lifecycle.Record
	err := s.run(ctx, OpRecover, name, func() error {
		var err error
		out, err = s.reg.Recover(name)
		if err == nil {
			s.logger.Debug("recovered secret %s", name)
		}
		return err
	})
	return out, err
}

// UpdateSecretProperties amends the metadata of the current version of
// props.Name.
func (s *Store) UpdateSecretProperties(ctx context.Context, props lifecycle.Properties) (lifecycle.Record, error) {
	return s.UpdateSecretVersionProperties(ctx, "", props)
}

// UpdateSecretVersionProperties is UpdateSecretProperties addressed at a
// specific version. Only the current version's metadata is mutable; naming an
// older version fails with ErrInvalidArgument and an unknown one with
// ErrSecretNotFound. An empty version selects the current one.
func (s *Store) UpdateSecretVersionProperties(ctx context.Context, version string, props lifecycle.Properties) (lifecycle.Record, error) {
	var out lifecycle.Record
	err := s.run(ctx, OpUpdate, props.Name, func() error {
		if version != "" {
			cur, err := s.reg.GetActive(props.Name)
			if err != nil {
				return err
			}
			if cur.Version != version {
				if _, err := s.reg.GetActiveVersion(props.Name, version); err != nil {
					return err
				}
				return fmt.Errorf("%w: version %s of %s is not the current version",
					lifecycle.ErrInvalidArgument, version, props.Name)
			}
		}
		var err error
		out, err = s.reg.UpdateMetadata(props)
		return err
	})
	return out, err
}

// ListSecrets returns the current version of every active secret by name.
func (s *Store) ListSecrets(ctx context.Context) ([]lifecycle.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.reg.ListActive(), nil
}

// ListDeletedSecrets returns the current version of every deleted secret by
// name.
func (s *Store) ListDeletedSecrets(ctx context.Context) ([]lifecycle.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.reg.ListDeleted(), nil
}

// PurgeExpired purges every deleted secret whose scheduled purge date has
// passed and returns the purged names. A secret recovered or recreated between
// the scan and its turn is left alone.
func (s *Store) PurgeExpired(ctx context.Context) ([]string, error) {
	now := s.now()
	var purged []string
	for _, name := range s.reg.Expired(now) {
		var done bool
		err := s.run(ctx, OpPurgeExpired, name, func() error {
			rec, err := s.reg.GetDeleted(name)
			if err != nil || rec.ScheduledPurgeOn == nil || rec.ScheduledPurgeOn.After(now) {
				return nil
			}
			if err := s.reg.Purge(name); err != nil {
				return err
			}
			done = true
			return nil
		})
		if err != nil {
			return purged, err
		}
		if done {
			purged = append(purged, name)
		}
	}
	if len(purged) > 0 {
		s.logger.Info("purged %d expired secret(s)", len(purged))
	}
	return purged, nil
}

// Partition reports which partition holds name: "active", "deleted" or "".
func (s *Store) Partition(name string) string {
	return s.reg.Partition(name)
}

// Counts returns the number of active and deleted secrets.
func (s *Store) Counts() (active, deleted int) {
	return s.reg.Counts()
}

// run executes fn while holding the lock for name. Cancellation is only
// observed before the lock is taken; once fn starts it runs to completion.
func (s *Store) run(ctx context.Context, op, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		s.metrics.recordOperation(op, OutcomeCanceled)
		return err
	}
	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		s.metrics.recordOperation(op, OutcomeCanceled)
		return err
	}
	defer release()

	err = fn()
	s.metrics.recordOperation(op, outcome(err))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, lifecycle.ErrSecretNotFound):
		return OutcomeSecretNotFound
	case errors.Is(err, lifecycle.ErrDeletedSecretNotFound):
		return OutcomeDeletedSecretNotFound
	case errors.Is(err, lifecycle.ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	}
	return "error"
}
