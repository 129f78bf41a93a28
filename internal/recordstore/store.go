// Package recordstore loads and indexes patient record bundles from a
// directory of JSON files. Bundles are opaque documents: callers navigate
// their structure themselves, the store only locates, parses and caches
// them.
package recordstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrRecordNotFound is returned when no bundle exists for a patient.
var ErrRecordNotFound = errors.New("patient record not found")

// RecordNotFoundError carries the patient ID that could not be resolved.
type RecordNotFoundError struct {
	PatientID string
}

// Error implements the error interface.
func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("patient record not found: %s", e.PatientID)
}

// Is allows errors.Is to match against ErrRecordNotFound.
func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// Unwrap returns the underlying sentinel error.
func (e *RecordNotFoundError) Unwrap() error {
	return ErrRecordNotFound
}

// Store serves patient bundles from a directory, caching parsed documents.
// A filesystem watcher invalidates the cache when bundle files change, so
// long-running servers pick up new records without a restart.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu      sync.RWMutex
	cache   map[string]map[string]any // patient ID -> parsed bundle
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates a Store over the given directory.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("record directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("record directory %s is not a directory", dir)
	}

	s := &Store{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]map[string]any),
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// The store still works without invalidation; records just
		// require a restart to refresh.
		logger.Warn().Err(err).Msg("record watcher unavailable, cache will not auto-invalidate")
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch record directory")
		watcher.Close()
		return s, nil
	}
	s.watcher = watcher
	go s.watch()

	return s, nil
}

// watch invalidates the cache whenever a bundle file changes.
func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.mu.Lock()
				s.cache = make(map[string]map[string]any)
				s.mu.Unlock()
				s.logger.Debug().Str("file", filepath.Base(ev.Name)).Msg("record cache invalidated")
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("record watcher error")
		}
	}
}

// Close stops the watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// LoadRecord returns the parsed bundle for a patient. Well-known filename
// patterns are tried first, then the directory is scanned for a bundle
// whose Patient resource carries the ID.
func (s *Store) LoadRecord(patientID string) (map[string]any, error) {
	if patientID == "" {
		return nil, &RecordNotFoundError{PatientID: patientID}
	}

	s.mu.RLock()
	if bundle, ok := s.cache[patientID]; ok {
		s.mu.RUnlock()
		return bundle, nil
	}
	s.mu.RUnlock()

	candidates := []string{
		patientID + ".json",
		"patient_" + patientID + ".json",
		patientID + "_bundle.json",
	}
	for _, name := range candidates {
		path := filepath.Join(s.dir, name)
		if bundle, err := s.parseFile(path); err == nil {
			s.put(patientID, bundle)
			return bundle, nil
		}
	}

	// Slow path: scan every bundle for a matching Patient resource.
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan record directory: %w", err)
	}
	for _, path := range files {
		bundle, err := s.parseFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("skipping unparseable bundle")
			continue
		}
		if bundlePatientID(bundle) == patientID {
			s.put(patientID, bundle)
			return bundle, nil
		}
	}

	return nil, &RecordNotFoundError{PatientID: patientID}
}

// ListPatientIDs returns up to limit patient IDs found in the directory.
// A limit of zero or less means no limit.
func (s *Store) ListPatientIDs(limit int) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan record directory: %w", err)
	}
	sort.Strings(files)

	var ids []string
	for _, path := range files {
		if limit > 0 && len(ids) >= limit {
			break
		}
		bundle, err := s.parseFile(path)
		if err != nil {
			continue
		}
		if id := bundlePatientID(bundle); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) parseFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bundle map[string]any
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return bundle, nil
}

func (s *Store) put(patientID string, bundle map[string]any) {
	s.mu.Lock()
	s.cache[patientID] = bundle
	s.mu.Unlock()
}

// Search returns all resources of the given type from a bundle.
func Search(bundle map[string]any, resourceType string) []map[string]any {
	entries, ok := bundle["entry"].([]any)
	if !ok {
		return nil
	}

	var out []map[string]any
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		resource, ok := entry["resource"].(map[string]any)
		if !ok {
			continue
		}
		if rt, _ := resource["resourceType"].(string); rt == resourceType {
			out = append(out, resource)
		}
	}
	return out
}

// bundlePatientID extracts the ID of the first Patient resource in a bundle.
func bundlePatientID(bundle map[string]any) string {
	patients := Search(bundle, "Patient")
	if len(patients) == 0 {
		return ""
	}
	id, _ := patients[0]["id"].(string)
	return id
}
