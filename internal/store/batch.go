// Package store persists the last generated playlist batch on disk.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

const (
	configDirName = "spotify-playlist-curator"
	batchDirName  = "batches"
	batchFileName = "batch.json"
)

// Batch is a set of generated playlists awaiting resolution.
type Batch struct {
	UserID    string              `json:"userId,omitempty"`
	Prompt    string              `json:"prompt,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	Playlists []playlist.Playlist `json:"playlists"`
}

// BatchStore handles persistent storage of one batch in a JSON file.
type BatchStore struct {
	path string
}

// DefaultBatchStore returns a BatchStore using the default location:
// ~/.config/spotify-playlist-curator/batch.json
func DefaultBatchStore() (*BatchStore, error) {
	configDir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return &BatchStore{path: filepath.Join(configDir, batchFileName)}, nil
}

// NewBatchStore creates a BatchStore with a custom path.
func NewBatchStore(path string) *BatchStore {
	return &BatchStore{path: path}
}

// Path returns the file path where the batch is stored.
func (s *BatchStore) Path() string {
	return s.path
}

// Load reads the stored batch.
// Returns (nil, nil) if the file does not exist.
func (s *BatchStore) Load() (*Batch, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	return &batch, nil
}

// Save writes the batch to disk, creating the parent directory if needed.
func (s *BatchStore) Save(batch *Batch) error {
	if batch == nil {
		return errors.New("cannot save nil batch")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating batch directory: %w", err)
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	// Readers see either the old file or the new one.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing batch file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing batch file: %w", err)
	}

	return nil
}

// Delete removes the batch file.
// Returns nil if the file does not exist.
func (s *BatchStore) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing batch file: %w", err)
	}
	return nil
}

// DefaultDir returns ~/.config/spotify-playlist-curator.
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config dir: %w", err)
	}
	return filepath.Join(configDir, configDirName), nil
}

// Dir holds one batch file per user under a root directory.
type Dir struct {
	root string
}

// NewDir creates a Dir rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// For returns the store for userID. Characters outside [A-Za-z0-9._-] are
// replaced so the ID is always a single path element.
func (d *Dir) For(userID string) *BatchStore {
	name := unsafeChars.ReplaceAllString(userID, "_")
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return &BatchStore{path: filepath.Join(d.root, batchDirName, name+".json")}
}
