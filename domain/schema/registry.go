package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the schemas of the active schema directory. It is safe for
// concurrent use; the watcher swaps the schema set on reload.
type Registry struct {
	mu      sync.RWMutex
	dir     string
	schemas map[string]Schema
	logger  *zap.Logger
}

// NewRegistry loads `<schemaRoot>/<schemaName>/<entity>.json` files.
// Malformed schema files are dropped with a warning; their entities run
// unvalidated.
func NewRegistry(schemaRoot, schemaName string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		dir:    filepath.Join(schemaRoot, schemaName),
		logger: logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the active schema directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Reload re-reads every schema file in the active directory.
func (r *Registry) Reload() error {
	schemas := make(map[string]Schema)

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			// No schema directory: everything runs unvalidated.
			r.swap(schemas)
			return nil
		}
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		entity := strings.TrimSuffix(name, ".json")

		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			r.logger.Warn("Skipping unreadable schema file",
				zap.String("entity", entity),
				zap.Error(err),
			)
			continue
		}

		var s Schema
		if err := json.Unmarshal(data, &s); err != nil {
			r.logger.Warn("Dropping malformed schema",
				zap.String("entity", entity),
				zap.Error(err),
			)
			continue
		}
		if err := s.Check(); err != nil {
			r.logger.Warn("Dropping structurally invalid schema",
				zap.String("entity", entity),
				zap.Error(err),
			)
			continue
		}
		schemas[entity] = s
	}

	r.swap(schemas)
	r.logger.Info("Schemas loaded",
		zap.String("dir", r.dir),
		zap.Int("entities", len(schemas)),
	)
	return nil
}

func (r *Registry) swap(schemas map[string]Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas = schemas
}

// Get returns the schema for an entity, if one is loaded.
func (r *Registry) Get(entity string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[entity]
	return s, ok
}

// Entities returns the entity names with a loaded schema.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	return names
}
