// Package events defines the alert change events consumed from the CDC feed and the
// per-recipient notifications produced from them.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert is the after-image of a row inserted into the alerts table.
// Immutable once decoded.
type Alert struct {
	ID             int64           `json:"id"`
	SubscriptionID int64           `json:"subscription_id"`
	Content        json.RawMessage `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Notification is the display-ready, per-recipient form of an Alert. Every recipient of
// an alert gets an identical copy; the user is addressed by the cache key or stream, not
// by a field here.
type Notification struct {
	AlertID        int64           `json:"alertId"`
	SubscriptionID int64           `json:"subscriptionId"`
	ProjectID      int64           `json:"projectId"`
	AOIID          string          `json:"aoiId"`
	ChannelID      int64           `json:"channelId"`
	ProjectName    string          `json:"projectName"`
	AOIName        string          `json:"aoiName"`
	ChannelName    string          `json:"channelName"`
	Content        json.RawMessage `json:"content"`
	DisplayTitle   string          `json:"displayTitle"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// DisplayTitle renders the title shown to users for an alert.
func DisplayTitle(projectName, aoiName, channelName string) string {
	return fmt.Sprintf("%s: %s via %s alert", projectName, aoiName, channelName)
}

// DroppedAlert is published to the dead-letter topic when an alert could not be
// delivered within the retry budget.
type DroppedAlert struct {
	Alert     *Alert    `json:"alert"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	DroppedAt time.Time `json:"dropped_at"`
}
