package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON document per user under a data directory. The
// default user's file is named prefs.json so data written by earlier
// deployments keeps working.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID string) string {
	if userID == "" || userID == DefaultUserID {
		return filepath.Join(s.dir, "prefs.json")
	}
	return filepath.Join(s.dir, "prefs-"+sanitize(userID)+".json")
}

// sanitize keeps user ids from escaping the data directory.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func (s *FileStore) Load(_ context.Context, userID string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(userID)
}

func (s *FileStore) SaveTopics(_ context.Context, userID string, topics []string) error {
	return s.update(userID, func(p *Preferences) {
		p.Topics = topics
	})
}

func (s *FileStore) SaveHome(_ context.Context, userID string, home HomeLocation) error {
	return s.update(userID, func(p *Preferences) {
		p.Home = home
	})
}

func (s *FileStore) SaveCalendar(_ context.Context, userID string, cal CalendarFeed) error {
	return s.update(userID, func(p *Preferences) {
		p.Calendar = cal
	})
}

func (s *FileStore) read(userID string) (Preferences, error) {
	var p Preferences
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return normalize(p), nil
	}
	if err != nil {
		return p, fmt.Errorf("read prefs: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode prefs: %w", err)
	}
	return normalize(p), nil
}

func (s *FileStore) update(userID string, apply func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(userID)
	if err != nil {
		return err
	}
	apply(&p)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.WriteFile(s.path(userID), data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
