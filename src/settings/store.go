// Package settings provides the hub's persistent key/value document. The
// document is a JSON tree on disk, addressable by dotted or segmented paths,
// holding package metadata and per-node opaque settings.
package settings

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"sync"
)

// DefaultFileName is the name of the settings file, resolved relative to the
// hub's working directory.
const DefaultFileName = "SamCoreSettings.json"

// DefaultPackage returns a fresh package record with default metadata.
func DefaultPackage() map[string]interface{} {
	return map[string]interface{}{
		"version":     "1.0.0",
		"development": false,
		"installed":   false,
		"enabled":     true,
		"persistent":  false,
		"mandatory":   false,
		"link":        "",
		"settings":    map[string]interface{}{},
	}
}

// Store is a mutable JSON document persisted to a file. All accessors are
// safe for concurrent use. When autosave is enabled, every mutation persists
// the document before returning.
type Store struct {
	l        sync.Mutex
	path     string
	autosave bool
	doc      map[string]interface{}
}

// NewStore opens the settings file at path, creating an empty document when
// the file is missing or empty. A parse failure on a non-empty file is
// returned as an error so that the caller can treat it as fatal rather than
// silently discarding user data.
func NewStore(path string, autosave bool) (*Store, error) {
	store := &Store{
		path:     path,
		autosave: autosave,
	}

	if err := store.Read(); err != nil {
		return nil, err
	}

	return store, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Read loads the document from disk, replacing the in-memory state. A
// missing or empty file yields an empty document.
func (s *Store) Read() error {
	s.l.Lock()
	defer s.l.Unlock()

	buf, err := ioutil.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = map[string]interface{}{}
			return nil
		}
		return err
	}

	if len(buf) == 0 {
		s.doc = map[string]interface{}{}
		return nil
	}

	doc := map[string]interface{}{}
	if err := json.Unmarshal(buf, &doc); err != nil {
		return fmt.Errorf("corrupt settings file %s: %v", s.path, err)
	}

	s.doc = doc

	return nil
}

// Save writes the document out as indented UTF-8 JSON.
func (s *Store) Save() error {
	s.l.Lock()
	defer s.l.Unlock()

	return s.save()
}

func (s *Store) save() error {
	buf, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(s.path, buf, 0755)
}

// Get returns the value at the given path. Each path element may itself be a
// dot-joined string. With no path, Get returns the whole document. The
// second return value reports whether the path exists.
func (s *Store) Get(path ...string) (interface{}, bool) {
	s.l.Lock()
	defer s.l.Unlock()

	segments := splitPath(path)
	if len(segments) == 0 {
		return s.doc, true
	}

	var current interface{} = s.doc
	for _, seg := range segments {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Set writes value at the given path, creating any missing intermediate
// objects along the way.
func (s *Store) Set(value interface{}, path ...string) error {
	s.l.Lock()
	defer s.l.Unlock()

	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty settings path")
	}

	parent := s.doc
	for _, seg := range segments[:len(segments)-1] {
		child, ok := parent[seg].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			parent[seg] = child
		}
		parent = child
	}

	parent[segments[len(segments)-1]] = value

	return s.commit()
}

// Unset removes the value at the given path. Removing an absent path is not
// an error.
func (s *Store) Unset(path ...string) error {
	s.l.Lock()
	defer s.l.Unlock()

	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty settings path")
	}

	parent, ok := s.parentOf(segments)
	if !ok {
		return nil
	}

	delete(parent, segments[len(segments)-1])

	return s.commit()
}

// Append adds value to the end of the sequence at the given path. It fails
// when the path does not hold a sequence.
func (s *Store) Append(value interface{}, path ...string) error {
	s.l.Lock()
	defer s.l.Unlock()

	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty settings path")
	}

	parent, ok := s.parentOf(segments)
	if !ok {
		return fmt.Errorf("settings path %v does not exist", segments)
	}

	last := segments[len(segments)-1]
	seq, ok := parent[last].([]interface{})
	if !ok {
		return fmt.Errorf("settings path %v is not a sequence", segments)
	}

	parent[last] = append(seq, value)

	return s.commit()
}

// Pop removes and returns the last element of the sequence at the given
// path. It fails when the path does not hold a non-empty sequence.
func (s *Store) Pop(path ...string) (interface{}, error) {
	s.l.Lock()
	defer s.l.Unlock()

	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty settings path")
	}

	parent, ok := s.parentOf(segments)
	if !ok {
		return nil, fmt.Errorf("settings path %v does not exist", segments)
	}

	last := segments[len(segments)-1]
	seq, ok := parent[last].([]interface{})
	if !ok {
		return nil, fmt.Errorf("settings path %v is not a sequence", segments)
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("settings path %v is empty", segments)
	}

	value := seq[len(seq)-1]
	parent[last] = seq[:len(seq)-1]

	if err := s.commit(); err != nil {
		return nil, err
	}

	return value, nil
}

// Empty discards the whole document.
func (s *Store) Empty() error {
	s.l.Lock()
	defer s.l.Unlock()

	s.doc = map[string]interface{}{}

	return s.commit()
}

// ToObject returns a deep copy of the document.
func (s *Store) ToObject() map[string]interface{} {
	s.l.Lock()
	defer s.l.Unlock()

	return copyObject(s.doc)
}

// Clone deep-copies a value previously returned by Get, so that it can be
// handed out without exposing the live document.
func Clone(v interface{}) interface{} {
	return copyValue(v)
}

// parentOf walks to the object holding the last path segment. The lock must
// be held.
func (s *Store) parentOf(segments []string) (map[string]interface{}, bool) {
	parent := s.doc
	for _, seg := range segments[:len(segments)-1] {
		child, ok := parent[seg].(map[string]interface{})
		if !ok {
			return nil, false
		}
		parent = child
	}
	return parent, true
}

// commit persists the document when autosave is enabled. The lock must be
// held.
func (s *Store) commit() error {
	if !s.autosave {
		return nil
	}
	return s.save()
}

func splitPath(path []string) []string {
	segments := []string{}
	for _, p := range path {
		for _, seg := range strings.Split(p, ".") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}
	return segments
}

func copyObject(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyObject(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
