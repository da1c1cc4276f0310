// Package strategy defines the interface for out-of-band notification channels.
package strategy

import (
	"context"
	"sort"
	"sync"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
)

// Channel types.
const (
	TypeEmail = "email"
	TypeSMS   = "sms"
)

// NotificationSender is the interface that all notification sending strategies must implement.
type NotificationSender interface {
	// Send sends a notification to the specified endpoint value.
	// The endpoint value format depends on the sender type:
	//   - Email: email address
	//   - SMS: phone number
	Send(ctx context.Context, endpointValue string, n *events.Notification) error

	// Type returns the endpoint type this sender handles (e.g., "email", "sms").
	Type() string
}

// Registry manages notification sender strategies.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]NotificationSender
}

// NewRegistry creates a new sender registry.
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[string]NotificationSender),
	}
}

// Register registers a sender strategy.
func (r *Registry) Register(sender NotificationSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[sender.Type()] = sender
}

// Get retrieves a sender strategy by type.
func (r *Registry) Get(senderType string) (NotificationSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[senderType]
	return sender, ok
}

// List returns all registered sender types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.senders))
	for t := range r.senders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
