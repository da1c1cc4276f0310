package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHooks struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (h *countingHooks) StreamOpened() { h.mu.Lock(); h.opened++; h.mu.Unlock() }
func (h *countingHooks) StreamClosed() { h.mu.Lock(); h.closed++; h.mu.Unlock() }

func drain(s *Stream) [][]byte {
	var frames [][]byte
	for {
		select {
		case f := <-s.C():
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestPushFansOutToEveryStream(t *testing.T) {
	r := New()
	streams := []*Stream{r.Register("u1"), r.Register("u1"), r.Register("u1")}
	other := r.Register("u2")

	delivered := r.Push("u1", []byte("a1"))
	assert.Equal(t, 3, delivered)

	for _, s := range streams {
		assert.Equal(t, [][]byte{[]byte("a1")}, drain(s))
	}
	assert.Empty(t, drain(other))
}

func TestPushWithoutStreamsIsNoop(t *testing.T) {
	r := New()
	assert.Zero(t, r.Push("u1", []byte("a1")))
	assert.Zero(t, r.Users())
}

func TestUnregisterAffectsOnlyThatStream(t *testing.T) {
	r := New()
	a := r.Register("u1")
	b := r.Register("u1")

	r.Unregister("u1", a)
	assert.Equal(t, 1, r.Count("u1"))

	select {
	case <-a.Done():
	default:
		t.Fatal("unregistered stream should be closed")
	}

	assert.Equal(t, 1, r.Push("u1", []byte("a2")))
	assert.Equal(t, [][]byte{[]byte("a2")}, drain(b))
	assert.Empty(t, drain(a))
}

func TestLastUnregisterClearsUser(t *testing.T) {
	hooks := &countingHooks{}
	r := New(WithHooks(hooks))
	s := r.Register("u1")

	r.Unregister("u1", s)
	r.Unregister("u1", s)

	assert.Zero(t, r.Count("u1"))
	assert.Zero(t, r.Users())
	r.mu.RLock()
	_, present := r.streams["u1"]
	r.mu.RUnlock()
	assert.False(t, present, "empty stream set must not be retained")
	assert.Equal(t, 1, hooks.opened)
	assert.Equal(t, 1, hooks.closed)
}

func TestFullStreamIsDropped(t *testing.T) {
	r := New(WithBufferSize(1))
	slow := r.Register("u1")
	fast := r.Register("u1")

	require.Equal(t, 2, r.Push("u1", []byte("a1")))
	drain(fast)

	// slow still holds a1, so a2 overflows it
	assert.Equal(t, 1, r.Push("u1", []byte("a2")))
	assert.Equal(t, 1, r.Count("u1"))
	assert.Equal(t, [][]byte{[]byte("a2")}, drain(fast))

	select {
	case <-slow.Done():
	default:
		t.Fatal("overflowing stream should be closed")
	}
}

func TestConcurrentRegisterPushUnregister(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%4)
			s := r.Register(user)
			r.Push(user, []byte("frame"))
			r.Unregister(user, s)
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Push(fmt.Sprintf("u%d", i%4), []byte("frame"))
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.Connections())
	assert.Zero(t, r.Users())
}
