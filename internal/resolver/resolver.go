// Package resolver expands an alert into its recipients and the display-ready
// notification each of them receives.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/unnatinarayan/garuda-notifier/internal/database"
	"github.com/unnatinarayan/garuda-notifier/internal/events"
)

// DefaultLookupTimeout bounds each relational lookup.
const DefaultLookupTimeout = 5 * time.Second

// ErrSubscriptionNotFound marks an alert whose subscription no longer exists.
// Retrying cannot fix it.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Directory is the relational lookup surface the resolver reads from.
type Directory interface {
	GetSubscription(ctx context.Context, id int64) (*database.Subscription, error)
	GetDisplayNames(ctx context.Context, projectID int64, aoiID string, channelID int64) (*database.DisplayNames, error)
	GetUserContacts(ctx context.Context, userIDs []string) ([]database.UserContact, error)
}

// Dispatcher delivers a notification out of band (email, SMS). Dispatch must not block.
type Dispatcher interface {
	Dispatch(contact database.UserContact, n *events.Notification)
}

// Delivery addresses one notification to one user.
type Delivery struct {
	UserID       string
	Contact      *database.UserContact // nil when the user has no contact record
	Notification *events.Notification
}

// Resolver turns alerts into deliveries.
type Resolver struct {
	directory     Directory
	dispatcher    Dispatcher
	lookupTimeout time.Duration
}

// New creates a resolver. dispatcher may be nil to disable out-of-band delivery.
func New(directory Directory, dispatcher Dispatcher, lookupTimeout time.Duration) *Resolver {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &Resolver{
		directory:     directory,
		dispatcher:    dispatcher,
		lookupTimeout: lookupTimeout,
	}
}

// Resolve looks up the alert's subscription and returns one delivery per distinct
// recipient, in subscription order. A missing or deleted subscription returns
// ErrSubscriptionNotFound. Display names and contact data are best effort: their
// failures are logged and never fail the alert. Other lookup errors are returned
// as-is and are worth retrying.
func (r *Resolver) Resolve(ctx context.Context, alert *events.Alert) ([]Delivery, error) {
	sub, err := r.subscription(ctx, alert)
	if err != nil {
		return nil, err
	}

	if sub.Status == database.StatusInactive {
		slog.Info("Subscription inactive, alert has no recipients",
			"alert_id", alert.ID,
			"subscription_id", sub.ID,
		)
		return nil, nil
	}

	userIDs := distinct(sub.UserIDs)
	if len(userIDs) == 0 {
		slog.Info("Subscription has no recipients",
			"alert_id", alert.ID,
			"subscription_id", sub.ID,
		)
		return nil, nil
	}

	names := r.displayNames(ctx, sub)
	contacts := r.contacts(ctx, alert.ID, userIDs)

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	deliveries := make([]Delivery, 0, len(userIDs))
	for _, userID := range userIDs {
		n := &events.Notification{
			AlertID:        alert.ID,
			SubscriptionID: sub.ID,
			ProjectID:      sub.ProjectID,
			AOIID:          sub.AOIID,
			ChannelID:      sub.ChannelID,
			ProjectName:    names.ProjectName,
			AOIName:        names.AOIName,
			ChannelName:    names.ChannelName,
			Content:        alert.Content,
			DisplayTitle:   events.DisplayTitle(names.ProjectName, names.AOIName, names.ChannelName),
			CreatedAt:      createdAt,
		}

		d := Delivery{UserID: userID, Notification: n}
		if c, ok := contacts[userID]; ok {
			d.Contact = &c
		}
		deliveries = append(deliveries, d)
	}

	r.dispatchOutOfBand(deliveries)

	slog.Debug("Resolved alert recipients",
		"alert_id", alert.ID,
		"subscription_id", sub.ID,
		"recipients", len(deliveries),
		"dissemination_mode", sub.DisseminationMode,
	)
	return deliveries, nil
}

func (r *Resolver) subscription(ctx context.Context, alert *events.Alert) (*database.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	sub, err := r.directory.GetSubscription(ctx, alert.SubscriptionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: alert %d references subscription %d", ErrSubscriptionNotFound, alert.ID, alert.SubscriptionID)
		}
		return nil, fmt.Errorf("failed to look up subscription %d: %w", alert.SubscriptionID, err)
	}
	if sub.Status == database.StatusDeleted {
		return nil, fmt.Errorf("%w: subscription %d is deleted", ErrSubscriptionNotFound, sub.ID)
	}
	return sub, nil
}

// displayNames never fails: any name it cannot find falls back to the raw identifier.
func (r *Resolver) displayNames(ctx context.Context, sub *database.Subscription) database.DisplayNames {
	fallback := database.DisplayNames{
		ProjectName: "Project " + strconv.FormatInt(sub.ProjectID, 10),
		AOIName:     "AOI " + sub.AOIID,
		ChannelName: "Channel " + strconv.FormatInt(sub.ChannelID, 10),
	}

	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	names, err := r.directory.GetDisplayNames(ctx, sub.ProjectID, sub.AOIID, sub.ChannelID)
	if err != nil {
		slog.Warn("Display name lookup failed, using identifiers",
			"subscription_id", sub.ID,
			"error", err,
		)
		return fallback
	}

	if names.ProjectName != "" {
		fallback.ProjectName = names.ProjectName
	}
	if names.AOIName != "" {
		fallback.AOIName = names.AOIName
	}
	if names.ChannelName != "" {
		fallback.ChannelName = names.ChannelName
	}
	return fallback
}

// contacts returns contact records keyed by user ID. A failed lookup yields an empty
// map so every recipient still gets in-app delivery.
func (r *Resolver) contacts(ctx context.Context, alertID int64, userIDs []string) map[string]database.UserContact {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	rows, err := r.directory.GetUserContacts(ctx, userIDs)
	if err != nil {
		slog.Warn("User contact lookup failed, delivering in-app only",
			"alert_id", alertID,
			"recipients", len(userIDs),
			"error", err,
		)
		return map[string]database.UserContact{}
	}

	byUser := make(map[string]database.UserContact, len(rows))
	for _, c := range rows {
		byUser[c.UserID] = c
	}
	return byUser
}

func (r *Resolver) dispatchOutOfBand(deliveries []Delivery) {
	if r.dispatcher == nil {
		return
	}
	for _, d := range deliveries {
		if d.Contact == nil || (d.Contact.Email == nil && d.Contact.Phone == nil) {
			continue
		}
		r.dispatcher.Dispatch(*d.Contact, d.Notification)
	}
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
