// Package file implements the entity store: one JSON file per document under
// <data_dir>/<schema>/<entity>/<id>.json, with a per-entity sidecar counter
// for id allocation.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"rserv/domain/document"
	"rserv/pkg/errors"
)

var entityNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// NullPolicy selects PATCH semantics for null values.
type NullPolicy string

const (
	NullStore  NullPolicy = "store"
	NullDelete NullPolicy = "delete"
)

// Store reads and writes entity documents under a single schema root.
type Store struct {
	root     string // <data_dir>/<schema_name>
	counters *counterSet
	logger   *zap.Logger
}

// NewStore creates a store rooted at <dataDir>/<schemaName>.
func NewStore(dataDir, schemaName string, logger *zap.Logger) (*Store, error) {
	root := filepath.Join(dataDir, schemaName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root %s: %w", root, err)
	}
	return &Store{root: root, counters: newCounterSet(), logger: logger}, nil
}

// Root returns the schema data root.
func (s *Store) Root() string {
	return s.root
}

// ValidateEntityName rejects names that could escape the data root.
func ValidateEntityName(entity string) error {
	if !entityNamePattern.MatchString(entity) {
		return errors.NewValidationError(fmt.Sprintf("invalid entity name: %s", entity))
	}
	return nil
}

func (s *Store) entityDir(entity string) (string, error) {
	if err := ValidateEntityName(entity); err != nil {
		return "", err
	}
	return filepath.Join(s.root, entity), nil
}

func (s *Store) docPath(entity string, id int64) (string, error) {
	dir, err := s.entityDir(entity)
	if err != nil {
		return "", err
	}
	if id <= 0 {
		return "", errors.NewValidationError(fmt.Sprintf("invalid document id: %d", id))
	}
	return filepath.Join(dir, strconv.FormatInt(id, 10)+".json"), nil
}

// Create stores a new document under a freshly allocated id and returns it.
// The id field of the document is overwritten.
func (s *Store) Create(entity string, doc document.Document) (int64, error) {
	dir, err := s.entityDir(entity)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "failed to create entity directory")
	}

	id, err := s.counters.next(dir)
	if err != nil {
		return 0, err
	}

	doc.SetID(id)
	if err := s.write(entity, id, doc); err != nil {
		return 0, err
	}
	return id, nil
}

// SaveAt stores a new document under a client-chosen id; conflicts when the
// id is already taken.
func (s *Store) SaveAt(entity string, id int64, doc document.Document) error {
	path, err := s.docPath(entity, id)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return errors.NewConflictError(fmt.Sprintf("%s with id %d already exists", entity, id))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create entity directory")
	}

	doc.SetID(id)
	return s.write(entity, id, doc)
}

// Get loads one document.
func (s *Store) Get(entity string, id int64) (document.Document, error) {
	path, err := s.docPath(entity, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("%s with id %d", entity, id))
		}
		return nil, errors.Wrap(err, "failed to read document")
	}

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "stored document is not valid JSON")
	}
	return doc, nil
}

// Replace overwrites an existing document wholesale. The stored id wins over
// whatever the body carries.
func (s *Store) Replace(entity string, id int64, doc document.Document) error {
	if _, err := s.Get(entity, id); err != nil {
		return err
	}
	doc.SetID(id)
	return s.write(entity, id, doc)
}

// Merge applies a PATCH body on top of the stored document and returns the
// merged result together with the names of the fields that changed. The id
// field never changes.
func (s *Store) Merge(entity string, id int64, patch document.Document, policy NullPolicy) (document.Document, []string, error) {
	current, err := s.Get(entity, id)
	if err != nil {
		return nil, nil, err
	}

	merged := current.Clone()
	var updated []string
	for field, val := range patch {
		if field == "id" {
			continue
		}
		if val.IsNull() && policy == NullDelete {
			if _, ok := merged[field]; ok {
				delete(merged, field)
				updated = append(updated, field)
			}
			continue
		}
		if existing, ok := merged[field]; !ok || !document.Equals(existing, val) {
			updated = append(updated, field)
		}
		merged[field] = val
	}
	sort.Strings(updated)

	return merged, updated, nil
}

// Write persists a validated document at its path. Used after Merge, where
// validation happens between the merge and the write.
func (s *Store) Write(entity string, id int64, doc document.Document) error {
	return s.write(entity, id, doc)
}

func (s *Store) write(entity string, id int64, doc document.Document) error {
	path, err := s.docPath(entity, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write document")
	}
	return nil
}

// Delete removes one document file.
func (s *Store) Delete(entity string, id int64) error {
	path, err := s.docPath(entity, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError(fmt.Sprintf("%s with id %d", entity, id))
		}
		return errors.Wrap(err, "failed to delete document")
	}
	return nil
}

// Exists reports whether the document file is present.
func (s *Store) Exists(entity string, id int64) bool {
	path, err := s.docPath(entity, id)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// FileExists reports whether <entity>/<name>.json is stored. The name comes
// from untrusted input (foreign key values), so path separators reject.
func (s *Store) FileExists(entity, name string) bool {
	if err := ValidateEntityName(entity); err != nil {
		return false
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, entity, name+".json"))
	return err == nil
}

// List loads every document of an entity, ordered by ascending id. A missing
// entity directory is an empty list.
func (s *Store) List(entity string) ([]document.Document, error) {
	dir, err := s.entityDir(entity)
	if err != nil {
		return nil, err
	}
	ids, err := s.storedIDs(dir)
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Get(entity, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			s.logger.Warn("Skipping unreadable document",
				zap.String("entity", entity),
				zap.Int64("id", id),
				zap.Error(err),
			)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Entities lists the entity directories present under the data root.
func (s *Store) Entities() ([]string, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to scan data root")
	}
	var entities []string
	for _, d := range dirents {
		if d.IsDir() && entityNamePattern.MatchString(d.Name()) {
			entities = append(entities, d.Name())
		}
	}
	sort.Strings(entities)
	return entities, nil
}

// All loads every document of every entity, for startup overlay rebuilds and
// full-text index construction.
func (s *Store) All() (map[string][]document.Document, error) {
	entities, err := s.Entities()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]document.Document, len(entities))
	for _, entity := range entities {
		docs, err := s.List(entity)
		if err != nil {
			return nil, err
		}
		out[entity] = docs
	}
	return out, nil
}

func (s *Store) storedIDs(dir string) ([]int64, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to scan entity directory")
	}

	var ids []int64
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
