package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/bnema/mediadesk/internal/port"
)

const (
	PrefShowOriginal  = "show_original"
	PrefLastDirectory = "last_directory"
)

// Preferences are the per-user UI settings that survive restarts.
type Preferences struct {
	ShowOriginal  bool
	LastDirectory string
}

type PreferenceService struct {
	store port.PreferenceStore
}

func NewPreferenceService(store port.PreferenceStore) *PreferenceService {
	return &PreferenceService{store: store}
}

// Load returns the stored preferences, defaulting unset keys.
func (s *PreferenceService) Load(ctx context.Context, user string) (Preferences, error) {
	var p Preferences

	raw, err := s.get(ctx, user, PrefShowOriginal)
	if err != nil {
		return p, err
	}
	if raw != "" {
		if p.ShowOriginal, err = strconv.ParseBool(raw); err != nil {
			return p, fmt.Errorf("preference %s: %w", PrefShowOriginal, err)
		}
	}

	if p.LastDirectory, err = s.get(ctx, user, PrefLastDirectory); err != nil {
		return p, err
	}
	return p, nil
}

func (s *PreferenceService) SetShowOriginal(ctx context.Context, user string, show bool) error {
	return s.store.Set(ctx, user, PrefShowOriginal, strconv.FormatBool(show))
}

// SetLastDirectory stores a cleaned absolute path; a blank dir clears it.
func (s *PreferenceService) SetLastDirectory(ctx context.Context, user, dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return s.store.Delete(ctx, user, PrefLastDirectory)
	}
	return s.store.Set(ctx, user, PrefLastDirectory, path.Clean("/"+dir))
}

func (s *PreferenceService) get(ctx context.Context, user, key string) (string, error) {
	v, err := s.store.Get(ctx, user, key)
	if errors.Is(err, port.ErrPreferenceNotSet) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("preference %s: %w", key, err)
	}
	return v, nil
}
