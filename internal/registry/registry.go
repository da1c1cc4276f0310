// Package registry tracks the live push streams open for each user.
//
// The registry is shared by the HTTP stream handlers, which register and unregister
// streams as clients come and go, and the alert processor, which pushes frames to
// every stream a user has open.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unnatinarayan/garuda-notifier/pkg/metrics"
)

// DefaultBufferSize is how many frames a stream may have queued before it is dropped.
const DefaultBufferSize = 64

// Stream is one open push channel for a user, such as a browser tab.
// Frames are consumed from C by the transport writing to the client.
type Stream struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// C returns the channel of frames queued for delivery.
func (s *Stream) C() <-chan []byte {
	return s.frames
}

// Done is closed when the stream has been dropped from the registry.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// offer queues a frame without blocking. Returns false if the stream is closed or full.
func (s *Stream) offer(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// Hooks observe stream lifecycle changes, for example to export metrics.
type Hooks interface {
	StreamOpened()
	StreamClosed()
}

// Registry maps user IDs to their open streams.
type Registry struct {
	mu         sync.RWMutex
	streams    map[string]map[string]*Stream
	bufferSize int
	hooks      Hooks
}

// Option configures a Registry.
type Option func(*Registry)

// WithBufferSize sets the per-stream frame queue size.
func WithBufferSize(size int) Option {
	return func(r *Registry) {
		if size > 0 {
			r.bufferSize = size
		}
	}
}

// WithHooks sets lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(r *Registry) {
		if h != nil {
			r.hooks = h
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		streams:    make(map[string]map[string]*Stream),
		bufferSize: DefaultBufferSize,
		hooks:      metrics.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register opens a new stream for the user.
func (r *Registry) Register(userID string) *Stream {
	s := &Stream{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		frames:      make(chan []byte, r.bufferSize),
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	set, ok := r.streams[userID]
	if !ok {
		set = make(map[string]*Stream)
		r.streams[userID] = set
	}
	set[s.ID] = s
	count := len(set)
	r.mu.Unlock()

	r.hooks.StreamOpened()
	slog.Info("Stream registered",
		"user_id", userID,
		"stream_id", s.ID,
		"user_streams", count,
	)
	return s
}

// Unregister removes exactly the given stream. The user's entry is deleted when its
// last stream goes away. Unregistering an already removed stream is a no-op.
func (r *Registry) Unregister(userID string, s *Stream) {
	if s == nil {
		return
	}
	if r.remove(userID, s) {
		slog.Info("Stream unregistered", "user_id", userID, "stream_id", s.ID)
	}
}

func (r *Registry) remove(userID string, s *Stream) bool {
	r.mu.Lock()
	set, ok := r.streams[userID]
	removed := false
	if ok {
		if _, present := set[s.ID]; present {
			delete(set, s.ID)
			removed = true
		}
		if len(set) == 0 {
			delete(r.streams, userID)
		}
	}
	r.mu.Unlock()

	s.close()
	if removed {
		r.hooks.StreamClosed()
	}
	return removed
}

// Push queues the frame on every stream open for the user and returns how many streams
// accepted it. A stream that cannot accept the frame is dropped and closed; the
// user's other streams are unaffected. With no open streams Push does nothing.
func (r *Registry) Push(userID string, frame []byte) int {
	r.mu.RLock()
	set := r.streams[userID]
	targets := make([]*Stream, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.offer(frame) {
			delivered++
			continue
		}
		slog.Warn("Dropping stream that cannot keep up",
			"user_id", userID,
			"stream_id", s.ID,
			"buffer_size", cap(s.frames),
		)
		r.remove(userID, s)
	}
	return delivered
}

// Count returns the number of streams open for the user.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams[userID])
}

// Users returns the number of users with at least one open stream.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Connections returns the total number of open streams.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, set := range r.streams {
		total += len(set)
	}
	return total
}
