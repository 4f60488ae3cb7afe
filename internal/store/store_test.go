package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/systmms/kvemu/internal/lifecycle"
	"github.com/systmms/kvemu/internal/logging"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *clock) {
	t.Helper()
	c := &clock{now: epoch}
	base := []Option{WithClock(c.Now), WithRecoverableDays(7)}
	return New(append(base, opts...)...), c
}

func ptr[T any](v T) *T {
	return &v
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	set, err := s.SetSecret(ctx, "TestSecret", "SecretValue", nil)
	require.NoError(t, err)
	assert.Len(t, set.Version, 32)
	assert.True(t, set.Enabled)
	assert.Equal(t, epoch, set.CreatedOn)
	assert.Equal(t, epoch, set.UpdatedOn)

	got, err := s.GetSecret(ctx, "TestSecret")
	require.NoError(t, err)
	assert.Equal(t, "TestSecret", got.Name)
	assert.Equal(t, "SecretValue", got.Value)

	again, err := s.GetSecret(ctx, "TestSecret")
	require.NoError(t, err)
	assert.Equal(t, got.Value, again.Value)
	assert.Equal(t, got.Version, again.Version)
}

func TestSetWithProperties(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	rec, err := s.SetSecret(ctx, "api-key", "v", &lifecycle.Properties{
		Name:        "api-key",
		ContentType: ptr("text/plain"),
		Tags:        map[string]string{"team": "payments"},
		Enabled:     ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", rec.ContentType)
	assert.Equal(t, "payments", rec.Tags["team"])
	assert.False(t, rec.Enabled)

	_, err = s.SetSecret(ctx, "api-key", "v", &lifecycle.Properties{Name: "other"})
	require.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	cur, err := s.GetSecret(ctx, "api-key")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, cur.Version)
}

func TestSetRejectsEmptyName(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	_, err := s.SetSecret(context.Background(), "", "v", nil)
	require.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestVersionsAccumulate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ids := []string{"aaa", "bbb", "ccc"}
	next := 0
	s, _ := newTestStore(t, WithVersionFunc(func() string {
		id := ids[next]
		next++
		return id
	}))

	for _, v := range []string{"one", "two", "three"} {
		_, err := s.SetSecret(ctx, "S", v, nil)
		require.NoError(t, err)
	}

	versions, err := s.ListVersions(ctx, "S")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "aaa", versions[0].Version)
	assert.Equal(t, "ccc", versions[2].Version)

	old, err := s.GetSecretVersion(ctx, "S", "bbb")
	require.NoError(t, err)
	assert.Equal(t, "two", old.Value)

	cur, err := s.GetSecretVersion(ctx, "S", "")
	require.NoError(t, err)
	assert.Equal(t, "three", cur.Value)

	_, err = s.GetSecretVersion(ctx, "S", "zzz")
	require.ErrorIs(t, err, lifecycle.ErrSecretNotFound)
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.SetSecret(ctx, "S", "V", nil)
	require.NoError(t, err)

	deleted, err := s.DeleteSecret(ctx, "S")
	require.NoError(t, err)
	require.NotNil(t, deleted.ScheduledPurgeOn)
	assert.Equal(t, epoch.Add(7*24*time.Hour), *deleted.ScheduledPurgeOn)

	_, err = s.GetSecret(ctx, "S")
	require.ErrorIs(t, err, lifecycle.ErrSecretNotFound)

	inspected, err := s.GetDeletedSecret(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "V", inspected.Value)

	recovered, err := s.RecoverDeletedSecret(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "V", recovered.Value)
	assert.False(t, recovered.IsDeleted())

	_, err = s.DeleteSecret(ctx, "S")
	require.NoError(t, err)
	require.NoError(t, s.PurgeDeletedSecret(ctx, "S"))

	_, err = s.RecoverDeletedSecret(ctx, "S")
	require.ErrorIs(t, err, lifecycle.ErrDeletedSecretNotFound)
	require.ErrorIs(t, s.PurgeDeletedSecret(ctx, "S"), lifecycle.ErrDeletedSecretNotFound)
	assert.Equal(t, "", s.Partition("S"))
}

func TestUpdateProperties(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, c := newTestStore(t)

	set, err := s.SetSecret(ctx, "S", "V", nil)
	require.NoError(t, err)

	c.Advance(time.Minute)
	updated, err := s.UpdateSecretProperties(ctx, lifecycle.Properties{
		Name:        "S",
		ContentType: ptr("text/plain"),
		Tags:        map[string]string{"Environment": "Test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "V", updated.Value)
	assert.Equal(t, set.Version, updated.Version)
	assert.Equal(t, "text/plain", updated.ContentType)
	assert.Equal(t, "Test", updated.Tags["Environment"])
	assert.Equal(t, epoch.Add(time.Minute), updated.UpdatedOn)

	got, err := s.GetSecret(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "V", got.Value)

	_, err = s.UpdateSecretProperties(ctx, lifecycle.Properties{Name: "missing"})
	require.ErrorIs(t, err, lifecycle.ErrSecretNotFound)
}

func TestUpdateVersionProperties(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.SetSecret(ctx, "S", "one", nil)
	require.NoError(t, err)
	second, err := s.SetSecret(ctx, "S", "two", nil)
	require.NoError(t, err)

	_, err = s.UpdateSecretVersionProperties(ctx, first.Version, lifecycle.Properties{Name: "S", Enabled: ptr(false)})
	require.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	_, err = s.UpdateSecretVersionProperties(ctx, "nope", lifecycle.Properties{Name: "S", Enabled: ptr(false)})
	require.ErrorIs(t, err, lifecycle.ErrSecretNotFound)

	updated, err := s.UpdateSecretVersionProperties(ctx, second.Version, lifecycle.Properties{Name: "S", Enabled: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	// the rejected updates left the first version untouched
	old, err := s.GetSecretVersion(ctx, "S", first.Version)
	require.NoError(t, err)
	assert.True(t, old.Enabled)
}

func TestFailedUpdateLeavesRecordUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.SetSecret(ctx, "S", "V", &lifecycle.Properties{ContentType: ptr("a")})
	require.NoError(t, err)
	_, err = s.DeleteSecret(ctx, "S")
	require.NoError(t, err)

	_, err = s.UpdateSecretProperties(ctx, lifecycle.Properties{Name: "S", ContentType: ptr("b")})
	require.ErrorIs(t, err, lifecycle.ErrSecretNotFound)

	rec, err := s.GetDeletedSecret(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ContentType)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	rec, err := s.SetSecret(ctx, "S", "V", &lifecycle.Properties{Tags: map[string]string{"k": "v"}})
	require.NoError(t, err)
	rec.Tags["k"] = "changed"

	got, err := s.GetSecret(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Tags["k"])
}

func TestListings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, name := range []string{"b", "a", "c"} {
		_, err := s.SetSecret(ctx, name, "x", nil)
		require.NoError(t, err)
	}
	_, err := s.DeleteSecret(ctx, "c")
	require.NoError(t, err)

	active, err := s.ListSecrets(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].Name)
	assert.Equal(t, "b", active[1].Name)

	deleted, err := s.ListDeletedSecrets(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "c", deleted[0].Name)
}

func TestPurgeExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, c := newTestStore(t)

	for _, name := range []string{"old", "young", "live"} {
		_, err := s.SetSecret(ctx, name, "x", nil)
		require.NoError(t, err)
	}
	_, err := s.DeleteSecret(ctx, "old")
	require.NoError(t, err)

	c.Advance(3 * 24 * time.Hour)
	_, err = s.DeleteSecret(ctx, "young")
	require.NoError(t, err)

	purged, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, purged)

	c.Advance(4 * 24 * time.Hour)
	purged, err = s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, purged)
	assert.Equal(t, "", s.Partition("old"))
	assert.Equal(t, "deleted", s.Partition("young"))
	assert.Equal(t, "active", s.Partition("live"))
}

func TestCanceledContextIsRejectedBeforeStart(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	_, err := s.SetSecret(context.Background(), "S", "V", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.DeleteSecret(ctx, "S")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "active", s.Partition("S"))

	_, err = s.ListSecrets(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelWhileWaitingForLock(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	release, err := s.locks.acquire(context.Background(), "S")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.SetSecret(ctx, "S", "V", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, "", s.Partition("S"))
	assert.Equal(t, 0, s.locks.size())
}

func TestDifferentNamesDoNotBlock(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	release, err := s.locks.acquire(context.Background(), "held")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = s.SetSecret(ctx, "free", "V", nil)
	require.NoError(t, err)
}

func TestConcurrentSetsOnDistinctNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	const n = 64
	var g errgroup.Group
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("secret-%02d", i)
		g.Go(func() error {
			_, err := s.SetSecret(ctx, name, name+"-value", nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("secret-%02d", i)
		rec, err := s.GetSecret(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, name+"-value", rec.Value)
	}
	active, _ := s.Counts()
	assert.Equal(t, n, active)
}

func TestConcurrentDeleteRecoverKeepsPartitionInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.SetSecret(ctx, "S", "V", nil)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, _ = s.DeleteSecret(ctx, "S")
			return nil
		})
		g.Go(func() error {
			_, _ = s.RecoverDeletedSecret(ctx, "S")
			return nil
		})
		g.Go(func() error {
			if p := s.Partition("S"); p != "active" && p != "deleted" {
				return fmt.Errorf("secret in partition %q", p)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	p := s.Partition("S")
	assert.Contains(t, []string{"active", "deleted"}, p)
	if p == "deleted" {
		_, err = s.RecoverDeletedSecret(ctx, "S")
		require.NoError(t, err)
	}
	rec, err := s.GetSecret(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "V", rec.Value)
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s, _ := newTestStore(t, WithMetrics(m))

	_, err := s.SetSecret(ctx, "S", "V", nil)
	require.NoError(t, err)
	_, err = s.GetSecret(ctx, "missing")
	require.Error(t, err)
	_, err = s.DeleteSecret(ctx, "S")
	require.NoError(t, err)
	_, err = s.RecoverDeletedSecret(ctx, "nope")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations().WithLabelValues(OpSet, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations().WithLabelValues(OpGet, OutcomeSecretNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations().WithLabelValues(OpRecover, OutcomeDeletedSecretNotFound)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Partition("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Partition("deleted")))
}

func TestMetricsPartitionsAfterConcurrentSets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMetrics(prometheus.NewRegistry())
	s, _ := newTestStore(t, WithMetrics(m))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SetSecret(ctx, fmt.Sprintf("S%02d", i), "V", nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32.0, testutil.ToFloat64(m.Partition("active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Partition("deleted")))

	_, err := s.DeleteSecret(ctx, "S00")
	require.NoError(t, err)
	assert.Equal(t, 31.0, testutil.ToFloat64(m.Partition("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Partition("deleted")))
}

func TestDebugLogRedactsValues(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s, _ := newTestStore(t, WithLogger(logging.NewWithWriter(&buf, true, true)))

	rec, err := s.SetSecret(context.Background(), "DB-PASSWORD", "hunter2-value", nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "set secret DB-PASSWORD version "+rec.Version)
	assert.Contains(t, buf.String(), "[REDACTED]")
	assert.NotContains(t, buf.String(), "hunter2-value")
}

func TestNewVersionID(t *testing.T) {
	t.Parallel()
	a, b := NewVersionID(), NewVersionID()
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
}
