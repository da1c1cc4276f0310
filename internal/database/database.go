// Package database provides the read-only lookups the notifier needs from the
// platform's relational store: subscriptions, display names and user contacts.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Subscription status values.
const (
	StatusInactive = 0
	StatusActive   = 1
	StatusDeleted  = 2
)

// Subscription binds one AOI and one alert channel to a set of recipient users.
type Subscription struct {
	ID                int64
	ProjectID         int64
	AOIID             string
	ChannelID         int64
	UserIDs           []string
	DisseminationMode []string
	Status            int
}

// DisplayNames holds the human-readable names for a subscription's references.
// A field is empty when its row could not be found.
type DisplayNames struct {
	ProjectName string
	AOIName     string
	ChannelName string
}

// UserContact is the contact data for one recipient. Email and Phone are nil when
// the user has none on record.
type UserContact struct {
	UserID string
	Email  *string
	Phone  *string
}

type subscriptionRow struct {
	ID                int64          `db:"id"`
	ProjectID         int64          `db:"project_id"`
	AOIID             string         `db:"aoi_id"`
	ChannelID         int64          `db:"channel_id"`
	UserIDs           pq.StringArray `db:"user_ids"`
	DisseminationMode pq.StringArray `db:"alert_dissemination_mode"`
	Status            sql.NullInt64  `db:"status"`
}

type displayNamesRow struct {
	ProjectName sql.NullString `db:"project_name"`
	AOIName     sql.NullString `db:"aoi_name"`
	ChannelName sql.NullString `db:"channel_name"`
}

type userContactRow struct {
	UserID string         `db:"user_id"`
	Email  sql.NullString `db:"email"`
	Phone  sql.NullString `db:"contactno"`
}

// DB wraps a database connection and provides the notifier's lookups.
type DB struct {
	conn *sqlx.DB
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(conn *sqlx.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// GetSubscription returns the subscription with the given ID, or ErrNotFound.
func (db *DB) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	query := `
		SELECT id, project_id, aoi_id, channel_id, user_ids, alert_dissemination_mode, status
		FROM subscription
		WHERE id = $1
	`

	var row subscriptionRow
	if err := db.conn.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subscription %d: %w", id, err)
	}

	status := StatusActive
	if row.Status.Valid {
		status = int(row.Status.Int64)
	}

	mode := []string(row.DisseminationMode)
	if len(mode) == 0 {
		mode = []string{"notify"}
	}

	return &Subscription{
		ID:                row.ID,
		ProjectID:         row.ProjectID,
		AOIID:             row.AOIID,
		ChannelID:         row.ChannelID,
		UserIDs:           []string(row.UserIDs),
		DisseminationMode: mode,
		Status:            status,
	}, nil
}

// GetDisplayNames looks up the project, AOI and channel names. Each name is resolved
// independently so one missing row does not hide the others.
func (db *DB) GetDisplayNames(ctx context.Context, projectID int64, aoiID string, channelID int64) (*DisplayNames, error) {
	query := `
		SELECT
			(SELECT p.name FROM project p WHERE p.id = $1) AS project_name,
			(SELECT aoi.name FROM area_of_interest aoi WHERE aoi.project_id = $1 AND aoi.aoi_id = $2) AS aoi_name,
			(SELECT acc.channel_name FROM alert_channel_catalogue acc WHERE acc.id = $3) AS channel_name
	`

	var row displayNamesRow
	if err := db.conn.GetContext(ctx, &row, query, projectID, aoiID, channelID); err != nil {
		return nil, fmt.Errorf("failed to get display names: %w", err)
	}

	return &DisplayNames{
		ProjectName: row.ProjectName.String,
		AOIName:     row.AOIName.String,
		ChannelName: row.ChannelName.String,
	}, nil
}

// GetUserContacts returns contact data for the users that exist among userIDs.
// Users without a row are absent from the result.
func (db *DB) GetUserContacts(ctx context.Context, userIDs []string) ([]UserContact, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT u.user_id::text AS user_id, u.email, u.contactno
		FROM users u
		WHERE u.user_id::text = ANY($1)
	`

	var rows []userContactRow
	if err := db.conn.SelectContext(ctx, &rows, query, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("failed to get user contacts: %w", err)
	}

	contacts := make([]UserContact, 0, len(rows))
	for _, r := range rows {
		contacts = append(contacts, UserContact{
			UserID: r.UserID,
			Email:  nullableString(r.Email),
			Phone:  nullableString(r.Phone),
		})
	}
	return contacts, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}
