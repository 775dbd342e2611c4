package store

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

func TestBatchStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "batch.json")
	s := NewBatchStore(path)

	batch := &Batch{
		UserID:    "user-1",
		Prompt:    "rainy day",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Playlists: []playlist.Playlist{{
			Name:  "Rain",
			Songs: []playlist.Song{{Title: "Riders on the Storm", Artist: "The Doors"}},
		}},
	}

	if err := s.Save(batch); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() returned nil batch")
	}
	if loaded.Prompt != batch.Prompt || !loaded.CreatedAt.Equal(batch.CreatedAt) {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.Playlists) != 1 || loaded.Playlists[0].Songs[0].Artist != "The Doors" {
		t.Errorf("Playlists = %+v", loaded.Playlists)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestBatchStore_LoadNonExistent(t *testing.T) {
	s := NewBatchStore(filepath.Join(t.TempDir(), "missing", "batch.json"))

	batch, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if batch != nil {
		t.Errorf("Load() = %+v, want nil", batch)
	}
}

func TestBatchStore_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewBatchStore(path).Load(); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestBatchStore_SaveNil(t *testing.T) {
	s := NewBatchStore(filepath.Join(t.TempDir(), "batch.json"))
	if err := s.Save(nil); err == nil {
		t.Error("Save(nil) error = nil")
	}
}

func TestBatchStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := NewBatchStore(path).Save(&Batch{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestBatchStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	s := NewBatchStore(path)

	if err := s.Delete(); err != nil {
		t.Errorf("Delete() on missing file error = %v", err)
	}
	if err := s.Save(&Batch{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("batch file still exists after Delete()")
	}
}

func TestDir_For(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)

	tests := []struct {
		userID string
		want   string
	}{
		{"spotifyuser", "spotifyuser.json"},
		{"../../etc/passwd", ".._.._etc_passwd.json"},
		{"", "_.json"},
		{"..", "_.json"},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			got := d.For(tt.userID).Path()
			want := filepath.Join(root, batchDirName, tt.want)
			if got != want {
				t.Errorf("For(%q).Path() = %q, want %q", tt.userID, got, want)
			}
		})
	}
}
