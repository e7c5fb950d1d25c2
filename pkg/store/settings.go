package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/models"
)

const settingColumns = `component, section, key, value, value_type, description`

// SettingStore persists the dynamic settings of each component.
type SettingStore struct {
	pool *pgxpool.Pool
}

// NewSettingStore creates a SettingStore using an existing pool.
func NewSettingStore(pool *pgxpool.Pool) *SettingStore {
	return &SettingStore{pool: pool}
}

// ListComponent returns all settings of one component.
func (s *SettingStore) ListComponent(ctx context.Context, component string) ([]models.Setting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settingColumns+`
		 FROM settings WHERE component = $1
		 ORDER BY section, key`,
		component)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var st models.Setting
		err := rows.Scan(&st.Component, &st.Section, &st.Key, &st.Value, &st.ValueType, &st.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// Get returns one setting by its full key.
func (s *SettingStore) Get(ctx context.Context, component, section, key string) (*models.Setting, error) {
	var st models.Setting
	err := s.pool.QueryRow(ctx,
		`SELECT `+settingColumns+`
		 FROM settings WHERE component = $1 AND section = $2 AND key = $3`,
		component, section, key,
	).Scan(&st.Component, &st.Section, &st.Key, &st.Value, &st.ValueType, &st.Description)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &st, nil
}

// Create inserts a new setting. A duplicate key surfaces as a unique
// violation (check with IsUniqueViolation).
func (s *SettingStore) Create(ctx context.Context, st models.Setting) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (component, section, key, value, value_type, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		st.Component, st.Section, st.Key, st.Value, st.ValueType, st.Description)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to create setting: %w", err)
	}
	return nil
}

// UpdateValue changes a setting's value. Returns pgx.ErrNoRows when the
// setting does not exist.
func (s *SettingStore) UpdateValue(ctx context.Context, component, section, key, value string) (*models.Setting, error) {
	var st models.Setting
	err := s.pool.QueryRow(ctx,
		`UPDATE settings SET value = $4
		 WHERE component = $1 AND section = $2 AND key = $3
		 RETURNING `+settingColumns,
		component, section, key, value,
	).Scan(&st.Component, &st.Section, &st.Key, &st.Value, &st.ValueType, &st.Description)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update setting: %w", err)
	}
	return &st, nil
}

// Delete removes a setting. Returns pgx.ErrNoRows when it does not exist.
func (s *SettingStore) Delete(ctx context.Context, component, section, key string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM settings WHERE component = $1 AND section = $2 AND key = $3`,
		component, section, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountComponent returns the number of settings stored for a component. Boot
// seeding only populates components that have no rows yet.
func (s *SettingStore) CountComponent(ctx context.Context, component string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM settings WHERE component = $1`, component,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count settings: %w", err)
	}
	return count, nil
}
