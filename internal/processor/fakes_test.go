package processor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/unnatinarayan/garuda-notifier/internal/database"
	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/resolver"
)

// readResult is one scripted ReadMessage outcome.
type readResult struct {
	Alert *events.Alert
	Msg   *kafka.Message
	Err   error
}

// FakeReader replays scripted results, then reports io.EOF.
type FakeReader struct {
	Results   []readResult
	CommitErr error
	Committed []int64
	index     int
}

func (f *FakeReader) Add(alert *events.Alert) {
	offset := int64(len(f.Results))
	f.Results = append(f.Results, readResult{Alert: alert, Msg: &kafka.Message{Offset: offset}})
}

func (f *FakeReader) AddError(err error, withMessage bool) {
	r := readResult{Err: err}
	if withMessage {
		r.Msg = &kafka.Message{Offset: int64(len(f.Results))}
	}
	f.Results = append(f.Results, r)
}

func (f *FakeReader) ReadMessage(ctx context.Context) (*events.Alert, *kafka.Message, error) {
	if f.index >= len(f.Results) {
		return nil, nil, io.EOF
	}
	r := f.Results[f.index]
	f.index++
	return r.Alert, r.Msg, r.Err
}

func (f *FakeReader) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Committed = append(f.Committed, msg.Offset)
	return nil
}

// FakeDirectory serves subscriptions from memory.
type FakeDirectory struct {
	Subscriptions map[int64]*database.Subscription
	Contacts      []database.UserContact
	SubErrs       []error
	SubCalls      int
}

func (f *FakeDirectory) GetSubscription(ctx context.Context, id int64) (*database.Subscription, error) {
	f.SubCalls++
	if len(f.SubErrs) > 0 {
		err := f.SubErrs[0]
		f.SubErrs = f.SubErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	sub, ok := f.Subscriptions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return sub, nil
}

func (f *FakeDirectory) GetDisplayNames(ctx context.Context, projectID int64, aoiID string, channelID int64) (*database.DisplayNames, error) {
	return &database.DisplayNames{ProjectName: "Alpha", AOIName: "North Field", ChannelName: "Flood"}, nil
}

func (f *FakeDirectory) GetUserContacts(ctx context.Context, userIDs []string) ([]database.UserContact, error) {
	return f.Contacts, nil
}

// FakeCache records appends and can fail them.
type FakeCache struct {
	AppendFunc func(userID string, n *events.Notification) error
	Appended   map[string][]int64
	Calls      int
}

func (f *FakeCache) Append(ctx context.Context, userID string, n *events.Notification) error {
	f.Calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.AppendFunc != nil {
		if err := f.AppendFunc(userID, n); err != nil {
			return err
		}
	}
	if f.Appended == nil {
		f.Appended = make(map[string][]int64)
	}
	f.Appended[userID] = append(f.Appended[userID], n.AlertID)
	return nil
}

// FakePusher records pushes and reports every user in Online as connected.
type FakePusher struct {
	Online map[string]bool
	Pushed map[string][]int64
}

func (f *FakePusher) Push(userID string, n *events.Notification) (int, error) {
	if f.Pushed == nil {
		f.Pushed = make(map[string][]int64)
	}
	f.Pushed[userID] = append(f.Pushed[userID], n.AlertID)
	if f.Online[userID] {
		return 1, nil
	}
	return 0, nil
}

// FakeDeadLetters records dropped alerts.
type FakeDeadLetters struct {
	Dropped    []*events.DroppedAlert
	PublishErr error
}

func (f *FakeDeadLetters) Publish(ctx context.Context, dropped *events.DroppedAlert) error {
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Dropped = append(f.Dropped, dropped)
	return nil
}

// FakeMetrics is a test fake for MetricsRecorder that tracks calls.
type FakeMetrics struct {
	mu                 sync.Mutex
	ReceivedCount      int
	ProcessedCount     int
	PublishedCount     int
	ErrorCount         int
	CustomIncrements   map[string]int
	ProcessedLatencies []time.Duration
}

func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{CustomIncrements: make(map[string]int)}
}

func (f *FakeMetrics) RecordReceived() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReceivedCount++
}

func (f *FakeMetrics) RecordProcessed(latency time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProcessedCount++
	f.ProcessedLatencies = append(f.ProcessedLatencies, latency)
}

func (f *FakeMetrics) RecordPublished() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PublishedCount++
}

func (f *FakeMetrics) RecordError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ErrorCount++
}

func (f *FakeMetrics) IncrementCustom(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CustomIncrements[name]++
}

var _ RecipientResolver = (*resolver.Resolver)(nil)
