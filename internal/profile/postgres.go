package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/newsfeed/internal/tracing"
)

const selectProfileQuery = `
	SELECT location_counts, location_preferences, category_counts, category_preferences
	FROM user_preference_profiles
	WHERE user_id = $1
`

// DefaultQueryTimeout bounds a single profile query when no timeout is given.
const DefaultQueryTimeout = 2 * time.Second

// PostgresStore implements Store on the user_preference_profiles table.
// Each dimension map is stored as a JSONB object of key -> number.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

// NewPostgresStore creates a new PostgresStore. Every query runs under
// timeout; a non-positive timeout selects DefaultQueryTimeout.
func NewPostgresStore(db *sql.DB, timeout time.Duration, logger *slog.Logger) *PostgresStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// GetProfile loads the profile for userID.
// Returns ErrUserNotFound when the row does not exist.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (p *Profile, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_preference_profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var locCounts, locPrefs, catCounts, catPrefs []byte
	err = s.db.QueryRowContext(ctx, selectProfileQuery, userID).
		Scan(&locCounts, &locPrefs, &catCounts, &catPrefs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query preference profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	p = &Profile{UserID: userID}
	columns := []struct {
		name string
		raw  []byte
		dst  *map[string]float64
	}{
		{"location_counts", locCounts, &p.LocationCounts},
		{"location_preferences", locPrefs, &p.LocationPreferences},
		{"category_counts", catCounts, &p.CategoryCounts},
		{"category_preferences", catPrefs, &p.CategoryPreferences},
	}
	for _, c := range columns {
		if err = decodeDimension(c.raw, c.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", c.name, err)
		}
	}

	return p, nil
}

// Upsert writes a profile. Used by seeding and tests; the ranking core only reads.
func (s *PostgresStore) Upsert(ctx context.Context, p *Profile) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_preference_profiles", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	encoded := make([]string, 0, 4)
	for _, m := range []map[string]float64{p.LocationCounts, p.LocationPreferences, p.CategoryCounts, p.CategoryPreferences} {
		if m == nil {
			m = map[string]float64{}
		}
		b, mErr := json.Marshal(m)
		if mErr != nil {
			return fmt.Errorf("failed to encode profile: %w", mErr)
		}
		encoded = append(encoded, string(b))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preference_profiles
			(user_id, location_counts, location_preferences, category_counts, category_preferences, updated_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			location_counts = EXCLUDED.location_counts,
			location_preferences = EXCLUDED.location_preferences,
			category_counts = EXCLUDED.category_counts,
			category_preferences = EXCLUDED.category_preferences,
			updated_at = NOW()
	`, p.UserID, encoded[0], encoded[1], encoded[2], encoded[3])
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// decodeDimension parses a JSONB column. NULL decodes to an empty map.
func decodeDimension(raw []byte, dst *map[string]float64) error {
	if len(raw) == 0 {
		*dst = map[string]float64{}
		return nil
	}
	m := map[string]float64{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*dst = m
	return nil
}
