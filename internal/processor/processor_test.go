package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unnatinarayan/garuda-notifier/internal/ack"
	"github.com/unnatinarayan/garuda-notifier/internal/cache"
	"github.com/unnatinarayan/garuda-notifier/internal/database"
	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/gateway"
	"github.com/unnatinarayan/garuda-notifier/internal/registry"
	"github.com/unnatinarayan/garuda-notifier/internal/resolver"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func subscriptionFor(users ...string) *FakeDirectory {
	return &FakeDirectory{
		Subscriptions: map[int64]*database.Subscription{
			7: {
				ID:        7,
				ProjectID: 3,
				AOIID:     "aoi-12",
				ChannelID: 2,
				UserIDs:   users,
				Status:    database.StatusActive,
			},
		},
	}
}

func testAlert(id int64) *events.Alert {
	return &events.Alert{
		ID:             id,
		SubscriptionID: 7,
		Content:        json.RawMessage(`{"ndvi":0.31}`),
		CreatedAt:      time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func newRedisCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.New(client)
}

func cachedIDs(t *testing.T, c *cache.Cache, userID string) []int64 {
	t.Helper()
	ns, err := c.Replay(context.Background(), userID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.AlertID)
	}
	return ids
}

func TestProcessAlerts_OnlineAndOfflineRecipients(t *testing.T) {
	ctx := context.Background()
	store := newRedisCache(t)
	reg := registry.New()
	gw := gateway.New(reg, store, time.Second)
	res := resolver.New(subscriptionFor("u1", "u2"), nil, time.Second)

	// u1 is online, u2 is not
	session, err := gw.Connect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, session.Replay)

	reader := &FakeReader{}
	reader.Add(testAlert(42))
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, res, store, gw, Options{Retry: fastRetry(), Metrics: m})

	require.NoError(t, p.ProcessAlerts(ctx))

	select {
	case frame := <-session.Stream.C():
		var n events.Notification
		require.NoError(t, json.Unmarshal(frame, &n))
		assert.Equal(t, int64(42), n.AlertID)
		assert.Equal(t, "Alpha: North Field via Flood alert", n.DisplayTitle)
	case <-time.After(time.Second):
		t.Fatal("online recipient received nothing")
	}

	assert.Equal(t, []int64{42}, cachedIDs(t, store, "u1"))
	assert.Equal(t, []int64{42}, cachedIDs(t, store, "u2"))
	assert.Equal(t, []int64{0}, reader.Committed)
	assert.Equal(t, 2, m.CustomIncrements["notifications_cached"])
	assert.Equal(t, 1, m.CustomIncrements["notifications_pushed"])
	assert.Equal(t, 1, m.ProcessedCount)

	// u2 connects later, sees the alert, then acknowledges it
	later, err := gw.Connect(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, later.Replay, 1)
	assert.Equal(t, int64(42), later.Replay[0].AlertID)

	removed, err := ack.NewHandler(store).MarkRead(ctx, "u2", 42)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, cachedIDs(t, store, "u2"))
	assert.Equal(t, []int64{42}, cachedIDs(t, store, "u1"))
}

func TestProcessAlerts_CacheKeepsNewestFifty(t *testing.T) {
	store := newRedisCache(t)
	reader := &FakeReader{}
	for id := int64(1); id <= 51; id++ {
		reader.Add(testAlert(id))
	}
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), store,
		gateway.New(registry.New(), store, time.Second), Options{Retry: fastRetry()})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	ids := cachedIDs(t, store, "u1")
	require.Len(t, ids, cache.DefaultDepth)
	assert.Equal(t, int64(51), ids[0])
	assert.Equal(t, int64(2), ids[len(ids)-1])
	assert.Len(t, reader.Committed, 51)
}

func TestProcessAlerts_LiveOrderMatchesFeed(t *testing.T) {
	store := newRedisCache(t)
	reg := registry.New(registry.WithBufferSize(8))
	gw := gateway.New(reg, store, time.Second)
	stream := reg.Register("u1")

	reader := &FakeReader{}
	for _, id := range []int64{5, 3, 9} {
		reader.Add(testAlert(id))
	}
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), store, gw,
		Options{Retry: fastRetry()})
	require.NoError(t, p.ProcessAlerts(context.Background()))

	var got []int64
	for i := 0; i < 3; i++ {
		var n events.Notification
		require.NoError(t, json.Unmarshal(<-stream.C(), &n))
		got = append(got, n.AlertID)
	}
	assert.Equal(t, []int64{5, 3, 9}, got)
	assert.Equal(t, []int64{9, 3, 5}, cachedIDs(t, store, "u1"))
}

func TestProcessAlerts_SkipsUndecodableEvents(t *testing.T) {
	reader := &FakeReader{}
	reader.AddError(fmt.Errorf("%w: op=%q", events.ErrNotInsert, "u"), true)
	reader.AddError(fmt.Errorf("%w: bad json", events.ErrMalformedEnvelope), true)
	c := &FakeCache{}
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry(), Metrics: m})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	assert.Equal(t, []int64{0, 1}, reader.Committed)
	assert.Equal(t, 0, c.Calls)
	assert.Equal(t, 2, m.CustomIncrements["alerts_skipped"])
	assert.Equal(t, 1, m.ErrorCount)
}

func TestProcessAlerts_ReadErrorWithoutMessageNotCommitted(t *testing.T) {
	reader := &FakeReader{}
	reader.AddError(errors.New("broker unavailable"), false)
	reader.Add(testAlert(1))
	c := &FakeCache{}
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry()})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	assert.Equal(t, []int64{1}, reader.Committed)
	assert.Equal(t, []int64{1}, c.Appended["u1"])
}

func TestProcessAlerts_OrphanedAlertCommittedWithoutRetry(t *testing.T) {
	dir := subscriptionFor("u1")
	reader := &FakeReader{}
	orphan := testAlert(1)
	orphan.SubscriptionID = 99
	reader.Add(orphan)
	c := &FakeCache{}
	dlq := &FakeDeadLetters{}
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, resolver.New(dir, nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry(), DeadLetters: dlq, Metrics: m})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	assert.Equal(t, 1, dir.SubCalls)
	assert.Equal(t, []int64{0}, reader.Committed)
	assert.Equal(t, 0, c.Calls)
	assert.Empty(t, dlq.Dropped)
	assert.Equal(t, 1, m.CustomIncrements["alerts_orphaned"])
}

func TestProcessAlerts_TransientLookupRetried(t *testing.T) {
	dir := subscriptionFor("u1")
	dir.SubErrs = []error{errors.New("connection reset by peer")}
	reader := &FakeReader{}
	reader.Add(testAlert(1))
	c := &FakeCache{}
	p := NewProcessorWithOptions(reader, resolver.New(dir, nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry()})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	assert.Equal(t, 2, dir.SubCalls)
	assert.Equal(t, []int64{1}, c.Appended["u1"])
	assert.Equal(t, []int64{0}, reader.Committed)
}

func TestProcessAlerts_DropsAfterRetryBudget(t *testing.T) {
	lookupErr := errors.New("database is down")
	dir := subscriptionFor("u1")
	dir.SubErrs = []error{lookupErr, lookupErr, lookupErr}
	reader := &FakeReader{}
	reader.Add(testAlert(1))
	reader.Add(testAlert(2))
	c := &FakeCache{}
	dlq := &FakeDeadLetters{}
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, resolver.New(dir, nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry(), DeadLetters: dlq, Metrics: m})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	// First alert used the whole budget, second succeeded
	assert.Equal(t, 4, dir.SubCalls)
	assert.Equal(t, []int64{0, 1}, reader.Committed)
	assert.Equal(t, []int64{2}, c.Appended["u1"])
	require.Len(t, dlq.Dropped, 1)
	assert.Equal(t, int64(1), dlq.Dropped[0].Alert.ID)
	assert.Equal(t, 3, dlq.Dropped[0].Attempts)
	assert.Contains(t, dlq.Dropped[0].Reason, "database is down")
	assert.Equal(t, 1, m.CustomIncrements["alerts_dropped"])
}

func TestProcessAlerts_CacheFailureStillPushesLive(t *testing.T) {
	reader := &FakeReader{}
	reader.Add(testAlert(1))
	c := &FakeCache{AppendFunc: func(userID string, _ *events.Notification) error {
		if userID == "u1" {
			return cache.ErrTimeout
		}
		return nil
	}}
	pusher := &FakePusher{Online: map[string]bool{"u1": true}}
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1", "u2"), nil, time.Second), c, pusher,
		Options{Retry: fastRetry(), Metrics: m})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	// 3 attempts for u1, 1 for u2
	assert.Equal(t, 4, c.Calls)
	assert.Empty(t, c.Appended["u1"])
	assert.Equal(t, []int64{1}, c.Appended["u2"])
	assert.Equal(t, []int64{1}, pusher.Pushed["u1"])
	assert.Equal(t, 1, m.CustomIncrements["cache_append_failed"])
	assert.Equal(t, 1, m.CustomIncrements["notifications_pushed"])
	assert.Equal(t, []int64{0}, reader.Committed)
}

func TestProcessAlerts_FillsMissingCreatedAtFromMessage(t *testing.T) {
	msgTime := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	alert := testAlert(1)
	alert.CreatedAt = time.Time{}
	reader := &FakeReader{Results: []readResult{{Alert: alert, Msg: &kafka.Message{Time: msgTime}}}}

	var got time.Time
	c := &FakeCache{AppendFunc: func(_ string, n *events.Notification) error {
		got = n.CreatedAt
		return nil
	}}
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry()})

	require.NoError(t, p.ProcessAlerts(context.Background()))
	assert.True(t, msgTime.Equal(got), "created_at = %v, want %v", got, msgTime)
}

func TestProcessAlerts_CommitFailureContinues(t *testing.T) {
	reader := &FakeReader{CommitErr: errors.New("rebalance in progress")}
	reader.Add(testAlert(1))
	reader.Add(testAlert(2))
	c := &FakeCache{}
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), c, &FakePusher{},
		Options{Retry: fastRetry(), Metrics: m})

	require.NoError(t, p.ProcessAlerts(context.Background()))

	assert.Equal(t, []int64{1, 2}, c.Appended["u1"])
	assert.Equal(t, 2, m.ErrorCount)
}

func TestProcessAlerts_StopsOnCancelledContext(t *testing.T) {
	reader := &FakeReader{}
	reader.Add(testAlert(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProcessor(reader, resolver.New(subscriptionFor("u1"), nil, time.Second), &FakeCache{}, &FakePusher{})
	require.NoError(t, p.ProcessAlerts(ctx))
	assert.Empty(t, reader.Committed)
}

func TestProcessAlerts_ShutdownMidAlertNotCommitted(t *testing.T) {
	reader := &FakeReader{}
	reader.Add(testAlert(1))
	reader.Add(testAlert(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &FakeCache{AppendFunc: func(userID string, _ *events.Notification) error {
		if userID == "u1" {
			cancel()
			return context.Canceled
		}
		return nil
	}}
	pusher := &FakePusher{}
	m := NewFakeMetrics()
	p := NewProcessorWithOptions(reader, resolver.New(subscriptionFor("u1", "u2"), nil, time.Second), c, pusher,
		Options{Retry: fastRetry(), Metrics: m})

	require.NoError(t, p.ProcessAlerts(ctx))

	assert.Empty(t, reader.Committed)
	assert.Empty(t, c.Appended)
	assert.Empty(t, pusher.Pushed["u2"])
	assert.Zero(t, m.CustomIncrements["cache_append_failed"])
	assert.Zero(t, m.ProcessedCount)
}
