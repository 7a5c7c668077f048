package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"clash-launcher/internal/constants"
	"clash-launcher/internal/debuglog"
)

// MarkerLayout is the on-disk format of the last update date.
const MarkerLayout = "20060102"

// Store persists the document and the last-update marker in one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir (usually <work>/config).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the configuration document path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, constants.ConfigFileName)
}

// MarkerPath returns the marker file path.
func (s *Store) MarkerPath() string {
	return filepath.Join(s.dir, constants.MarkerFileName)
}

// Exists reports whether a configuration document is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Path())
	return err == nil && !info.IsDir()
}

// Save encodes doc and replaces the configuration file atomically.
func (s *Store) Save(doc *Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}
	data, err := Encode(doc)
	if err != nil {
		return "", err
	}
	path := s.Path()
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("config: save %s: %w", path, err)
	}
	debuglog.InfoLog("saveConfig: wrote %d nodes to %s", len(doc.Proxies), path)
	return path, nil
}

// Load reads and decodes the configuration document.
func (s *Store) Load() (*Document, error) {
	path := s.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Decode(data)
}

// MarkUpdated records date (day granularity) as the last successful refresh.
func (s *Store) MarkUpdated(date time.Time) error {
	path := s.MarkerPath()
	if err := writeFileAtomic(path, []byte(date.Format(MarkerLayout))); err != nil {
		return fmt.Errorf("config: write marker %s: %w", path, err)
	}
	return nil
}

// LastUpdateDate returns the recorded date. A missing or malformed marker
// reports ok=false so the caller refreshes.
func (s *Store) LastUpdateDate() (date time.Time, ok bool, err error) {
	path := s.MarkerPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("config: read marker %s: %w", path, err)
	}
	raw := strings.TrimSpace(string(data))
	date, err = time.ParseInLocation(MarkerLayout, raw, time.UTC)
	if err != nil {
		debuglog.WarnLog("lastUpdateDate: ignoring malformed marker %q", raw)
		return time.Time{}, false, nil
	}
	return date, true, nil
}

// Encode renders doc as YAML.
func Encode(doc *Document) ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return []byte(b.String()), nil
}

// Decode parses a YAML document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// rename is replaced in tests to simulate a crash before the swap.
var rename = os.Rename

// syncDir flushes a directory entry so that a completed rename survives a
// power loss. Windows cannot open directories for syncing.
var syncDir = func(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err = rename(tmpName, path); err != nil {
		return err
	}
	// The new file is in place; a failed directory sync only weakens durability.
	if serr := syncDir(dir); serr != nil {
		debuglog.WarnLog("writeFileAtomic: sync %s: %v", dir, serr)
	}
	return nil
}
