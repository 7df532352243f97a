// Package store implements the atomic temp-and-rename durability layer:
// every persisted file is written to a ".tmp" sibling and only then renamed
// into place, so a crash mid-write never leaves a half-written file behind.
// Readers tolerate missing or malformed files by logging and returning an
// empty/zero value rather than propagating the error.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"dataexplorer/internal/model"
	"dataexplorer/internal/rawtable"
)

// ErrCorrupt wraps a decode failure on a persisted file. Load* functions
// never return it to callers — they log it and fall back to empty state —
// but it is exported so tests can assert on the failure mode.
type ErrCorrupt struct {
	Path string
	Err  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("store: %s is corrupt: %v", e.Path, e.Err)
}

func (e *ErrCorrupt) Unwrap() error { return e.Err }

// Store is rooted at a stable per-user data directory and knows the fixed
// file layout for the cache's persisted state.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating the directory tree if needed.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"Cache", "Settings", "Logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(parts ...string) string {
	return filepath.Join(append([]string{s.dir}, parts...)...)
}

// writeAtomic writes data to path via a .tmp sibling then renames into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		log.Printf("[store] read %s: %v (treating as empty)", path, err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("[store] %v", &ErrCorrupt{Path: path, Err: err})
		return nil
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// Taglist persistence.

func (s *Store) SaveTaglist(tags []model.TagInfo) error {
	return writeJSON(s.path("Cache", "Taglist.json"), tags)
}

func (s *Store) LoadTaglist() []model.TagInfo {
	var tags []model.TagInfo
	readJSON(s.path("Cache", "Taglist.json"), &tags)
	return tags
}

// Coverage persistence. The ledger is stored as tag -> [][2]int64 of
// [startSec, endSec] pairs.

func (s *Store) SaveCoverage(snapshot map[string][]model.Interval) error {
	out := make(map[string][][2]int64, len(snapshot))
	for tag, ivs := range snapshot {
		pairs := make([][2]int64, len(ivs))
		for i, iv := range ivs {
			pairs[i] = [2]int64{iv.StartSec, iv.EndSec}
		}
		out[tag] = pairs
	}
	return writeJSON(s.path("Cache", "TagCoverage.json"), out)
}

func (s *Store) LoadCoverage() map[string][]model.Interval {
	raw := make(map[string][][2]int64)
	readJSON(s.path("Cache", "TagCoverage.json"), &raw)
	out := make(map[string][]model.Interval, len(raw))
	for tag, pairs := range raw {
		ivs := make([]model.Interval, len(pairs))
		for i, p := range pairs {
			ivs[i] = model.Interval{StartSec: p[0], EndSec: p[1]}
		}
		out[tag] = ivs
	}
	return out
}

// rawRecord is the JSON-on-disk shape for a RAW/WORKING row.
type rawRecord struct {
	TimestampMs int64               `json:"timestampMs"`
	Values      map[string]*float64 `json:"values"`
}

type tableFile struct {
	Columns []string    `json:"columns"`
	Rows    []rawRecord `json:"rows"`
}

func toTableFile(rows []rawtable.Row, order []string) tableFile {
	tf := tableFile{Columns: order, Rows: make([]rawRecord, len(rows))}
	for i, r := range rows {
		tf.Rows[i] = rawRecord{TimestampMs: r.TimestampMs, Values: r.Values}
	}
	return tf
}

func fromTableFile(tf tableFile) ([]rawtable.Row, []string) {
	rows := make([]rawtable.Row, len(tf.Rows))
	for i, r := range tf.Rows {
		rows[i] = rawtable.Row{
			TimestampMs:   r.TimestampMs,
			TimestampText: model.FormatTimestamp(r.TimestampMs),
			Values:        r.Values,
		}
	}
	return rows, tf.Columns
}

// SaveRawTable persists RAW as rows of timestampMs plus tag values, with the
// tag column insertion order stored alongside. timestampText is not written;
// it is re-derived from timestampMs on load.
func (s *Store) SaveRawTable(rows []rawtable.Row, order []string) error {
	return writeJSON(s.path("Cache", "RawTable.json"), toTableFile(rows, order))
}

func (s *Store) LoadRawTable() ([]rawtable.Row, []string) {
	var tf tableFile
	readJSON(s.path("Cache", "RawTable.json"), &tf)
	return fromTableFile(tf)
}

// SaveWorkingTable persists WORKING under the settings last applied to it.
func (s *Store) SaveWorkingTable(rows []rawtable.Row, order []string) error {
	return writeJSON(s.path("Cache", "WorkingTable.json"), toTableFile(rows, order))
}

func (s *Store) LoadWorkingTable() ([]rawtable.Row, []string) {
	var tf tableFile
	readJSON(s.path("Cache", "WorkingTable.json"), &tf)
	return fromTableFile(tf)
}

// Settings persistence.

func (s *Store) SaveSiteSettings(v model.SiteSettings) error {
	return writeJSON(s.path("Settings", "SiteSettings.json"), v)
}

func (s *Store) LoadSiteSettings() model.SiteSettings {
	var v model.SiteSettings
	readJSON(s.path("Settings", "SiteSettings.json"), &v)
	return v
}

func (s *Store) SaveTagSettings(v model.TagSettings) error {
	return writeJSON(s.path("Settings", "TagSettings.json"), v)
}

func (s *Store) LoadTagSettings() model.TagSettings {
	v := model.NewTagSettings()
	readJSON(s.path("Settings", "TagSettings.json"), &v)
	return v
}

// ClearCache removes every cache file (but not Settings), matching the
// /clear_cache operation's contract.
func (s *Store) ClearCache() error {
	for _, name := range []string{"Taglist.json", "RawTable.json", "WorkingTable.json", "TagCoverage.json"} {
		p := s.path("Cache", name)
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: remove %s: %w", p, err)
		}
	}
	return nil
}

// AppendEvent appends one log_event line to the events log, matching the
// original's diagnostic-sink behavior for /log_event.
func (s *Store) AppendEvent(kind, message string) error {
	f, err := os.OpenFile(s.path("Logs", "events.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open events log: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[log_event] type=%s message=%s\n", kind, message)
	return err
}
