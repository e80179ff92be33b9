// Package tokenstore persists Garmin session tokens on disk.
//
// The layout matches the Python garth convention the original wrapper used:
// a directory (GARMINTOKENS, typically /data/.garminconnect in the
// container) holding oauth1_token.json and oauth2_token.json. Files written
// by the Python client are readable by this store and vice versa, so an
// existing /data volume keeps working after a redeploy.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
)

const (
	oauth1File = "oauth1_token.json"
	oauth2File = "oauth2_token.json"

	dirPermissions  = 0700
	filePermissions = 0600
)

// ErrNotFound is returned by Load when no tokens have been persisted.
var ErrNotFound = errors.New("tokenstore: no tokens stored")

// Store reads and writes Garmin tokens under a directory.
// It implements garmin.TokenStore.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is created lazily on the
// first Save, so constructing a store for a path that does not exist yet is
// fine (first boot with an empty /data volume).
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads the persisted tokens.
//
// Returns:
//   - *garmin.OAuth1Token, *garmin.OAuth2Token: Stored tokens; OAuth2 may be
//     nil if only the long-lived token was saved
//   - error: ErrNotFound when the store is empty or absent
func (s *Store) Load() (*garmin.OAuth1Token, *garmin.OAuth2Token, error) {
	var o1 garmin.OAuth1Token
	if err := s.readJSON(oauth1File, &o1); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("reading oauth1 token: %w", err)
	}

	var o2 garmin.OAuth2Token
	if err := s.readJSON(oauth2File, &o2); err != nil {
		if os.IsNotExist(err) {
			// Long-lived token alone is enough; the bearer is re-minted.
			return &o1, nil, nil
		}
		return nil, nil, fmt.Errorf("reading oauth2 token: %w", err)
	}

	return &o1, &o2, nil
}

// Save persists both tokens. Each file is written to a temp name and
// renamed into place so a crash never leaves a half-written token.
//
// Parameters:
//   - o1: Long-lived OAuth1 token (required)
//   - o2: OAuth2 bearer (optional, may be nil)
func (s *Store) Save(o1 *garmin.OAuth1Token, o2 *garmin.OAuth2Token) error {
	if o1 == nil || o1.Token == "" {
		return fmt.Errorf("tokenstore: refusing to save empty oauth1 token")
	}

	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	if err := s.writeJSON(oauth1File, o1); err != nil {
		return fmt.Errorf("writing oauth1 token: %w", err)
	}
	if o2 != nil {
		if err := s.writeJSON(oauth2File, o2); err != nil {
			return fmt.Errorf("writing oauth2 token: %w", err)
		}
	}
	return nil
}

// Clear removes all persisted tokens. Missing files are not an error.
func (s *Store) Clear() error {
	for _, name := range []string{oauth1File, oauth2File} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	return nil
}

// Exists reports whether the store holds a long-lived token.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, oauth1File))
	return err == nil
}

// readJSON decodes a JSON file within the store directory.
func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// writeJSON writes a JSON file atomically within the store directory.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return err
	}
	return nil
}
