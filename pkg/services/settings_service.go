// Package services contains business logic service layer implementations.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// Component names under which each binary stores its runtime settings.
const (
	ComponentBackend = "BACKEND"
	ComponentWorker  = "WORKER"
)

// SettingsService manages the typed runtime settings of a component.
type SettingsService struct {
	settings *store.SettingStore
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(settings *store.SettingStore) *SettingsService {
	return &SettingsService{settings: settings}
}

// List returns all settings of a component.
func (s *SettingsService) List(httpCtx context.Context, component string) ([]models.Setting, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	settings, err := s.settings.ListComponent(ctx, component)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

// TypedMap returns a component's settings as a flat key→value map with
// each value cast to its declared type.
func (s *SettingsService) TypedMap(httpCtx context.Context, component string) (map[string]any, error) {
	settings, err := s.List(httpCtx, component)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(settings))
	for _, st := range settings {
		v, err := castSetting(st.Value, st.ValueType)
		if err != nil {
			return nil, fmt.Errorf("setting %s.%s.%s: %w", st.Component, st.Section, st.Key, err)
		}
		out[st.Key] = v
	}
	return out, nil
}

// Create adds a new setting. The value must parse as the declared type.
func (s *SettingsService) Create(httpCtx context.Context, st models.Setting) (*models.Setting, error) {
	if st.Component == "" {
		return nil, NewValidationError("component", "required")
	}
	if st.Section == "" {
		return nil, NewValidationError("section", "required")
	}
	if st.Key == "" {
		return nil, NewValidationError("key", "required")
	}
	if !models.ValidSettingType(st.ValueType) {
		return nil, NewValidationError("value_type", "must be one of int, float, bool, string")
	}
	if _, err := castSetting(st.Value, st.ValueType); err != nil {
		return nil, NewValidationError("value", err.Error())
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.settings.Create(ctx, st); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create setting: %w", err)
	}
	return &st, nil
}

// Update replaces the value of an existing setting, keeping its type.
func (s *SettingsService) Update(httpCtx context.Context, component, section, key, value string) (*models.Setting, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	existing, err := s.settings.Get(ctx, component, section, key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load setting: %w", err)
	}
	if _, err := castSetting(value, existing.ValueType); err != nil {
		return nil, NewValidationError("value", err.Error())
	}

	updated, err := s.settings.UpdateValue(ctx, component, section, key, value)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update setting: %w", err)
	}
	return updated, nil
}

// Delete removes a setting.
func (s *SettingsService) Delete(httpCtx context.Context, component, section, key string) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.settings.Delete(ctx, component, section, key); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

// Seed populates a component's defaults once: it writes the given
// settings only when the component has no rows at all, so operator
// edits survive restarts.
func (s *SettingsService) Seed(ctx context.Context, component string, defaults []models.Setting) error {
	count, err := s.settings.CountComponent(ctx, component)
	if err != nil {
		return fmt.Errorf("failed to count settings: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, st := range defaults {
		st.Component = component
		if err := s.settings.Create(ctx, st); err != nil {
			// A concurrent boot may have seeded the same key.
			if store.IsUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("failed to seed setting %s.%s: %w", st.Section, st.Key, err)
		}
	}
	slog.Info("Seeded component settings", "component", component, "count", len(defaults))
	return nil
}

// IntSetting reads one int setting, falling back when missing or mistyped.
func (s *SettingsService) IntSetting(ctx context.Context, component, section, key string, fallback int) int {
	st, err := s.settings.Get(ctx, component, section, key)
	if err != nil {
		return fallback
	}
	v, err := strconv.Atoi(st.Value)
	if err != nil {
		return fallback
	}
	return v
}

// FloatSetting reads one float setting, falling back when missing or mistyped.
func (s *SettingsService) FloatSetting(ctx context.Context, component, section, key string, fallback float64) float64 {
	st, err := s.settings.Get(ctx, component, section, key)
	if err != nil {
		return fallback
	}
	v, err := strconv.ParseFloat(st.Value, 64)
	if err != nil {
		return fallback
	}
	return v
}

// castSetting converts a stored text value to its declared type.
func castSetting(value, valueType string) (any, error) {
	switch valueType {
	case models.SettingTypeInt:
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", value)
		}
		return v, nil
	case models.SettingTypeFloat:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float", value)
		}
		return v, nil
	case models.SettingTypeBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", value)
		}
		return v, nil
	case models.SettingTypeString:
		return value, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", valueType)
	}
}
