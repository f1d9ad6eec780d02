package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/webmux/schema"
)

// Blob is the single serialized record shared by every window of a profile.
// It is a last-writer-wins resource; writers are expected to debounce.
type Blob struct {
	Sessions        []schema.SessionRecord `json:"sessions"`
	ActiveSessionID schema.SessionID       `json:"activeSessionId,omitempty"`
}

// Store persists profile blobs to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads a profile blob from disk. The second return is false when no
// blob has been written yet.
func (s *Store) Load(profile schema.ProfileID) (Blob, bool, error) {
	path := s.pathForProfile(profile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "profile", profile)
			}
			return Blob{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "profile", profile, "err", err)
		}
		return Blob{}, false, err
	}
	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "profile", profile, "err", err)
		}
		return Blob{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "profile", profile, "sessions", len(blob.Sessions))
	}
	return blob, true, nil
}

// Save writes a profile blob to disk atomically (temp file plus rename), so
// a concurrent reader in another window never observes a torn write.
func (s *Store) Save(profile schema.ProfileID, blob Blob) error {
	path := s.pathForProfile(profile)
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return s.saveFailed(profile, err)
	}
	tmp, err := os.CreateTemp(s.dir, "state-*.json")
	if err != nil {
		return s.saveFailed(profile, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(profile, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(profile, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(profile, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(profile, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return s.saveFailed(profile, err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "profile", profile, "sessions", len(blob.Sessions))
	}
	return nil
}

func (s *Store) saveFailed(profile schema.ProfileID, err error) error {
	if s.log != nil {
		s.log.Warn("state save failed", "profile", profile, "err", err)
	}
	return err
}

func (s *Store) pathForProfile(profile schema.ProfileID) string {
	name := sanitize(string(profile))
	if name == "" {
		name = "default"
	}
	return filepath.Join(s.dir, name+".json")
}

// ProfileForPath maps a state file path back to its profile id, reporting
// false for paths the store does not own (temp files, foreign extensions).
func (s *Store) ProfileForPath(path string) (schema.ProfileID, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") || strings.HasPrefix(base, "state-") {
		return "", false
	}
	return schema.ProfileID(strings.TrimSuffix(base, ".json")), true
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
