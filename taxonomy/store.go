package taxonomy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/partsol/checkmate/pipeerr"
)

// Store loads and saves taxonomy artifacts from a directory. Artifacts are
// YAML files named taxonomy_<id>.yaml; loaded taxonomies are validated and
// must be treated as immutable by callers.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// artifactPath returns the on-disk path for a taxonomy id.
func (s *Store) artifactPath(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("taxonomy_%s.yaml", id))
}

// Load reads and validates the artifact for the given taxonomy id. A missing
// artifact is a CONFIG_ERROR: fatal for the event that requested it.
func (s *Store) Load(id string) (*Taxonomy, error) {
	data, err := os.ReadFile(s.artifactPath(id))
	if err != nil {
		return nil, pipeerr.New("taxonomy", "load", pipeerr.ErrCodeConfig,
			"taxonomy artifact not found for id "+id).WithCause(err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, pipeerr.New("taxonomy", "load", pipeerr.ErrCodeParse,
			"malformed taxonomy artifact "+id).WithCause(err)
	}
	if t.ID == "" {
		t.ID = id
	}
	if err := t.Validate(); err != nil {
		return nil, pipeerr.New("taxonomy", "load", pipeerr.ErrCodeValidation,
			"invalid taxonomy artifact "+id).WithCause(err)
	}
	return &t, nil
}

// Save writes the taxonomy's artifact, creating the directory if needed.
func (s *Store) Save(t *Taxonomy) error {
	if err := t.Validate(); err != nil {
		return pipeerr.New("taxonomy", "save", pipeerr.ErrCodeValidation,
			"refusing to save invalid taxonomy").WithCause(err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create taxonomy directory: %w", err)
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal taxonomy: %w", err)
	}
	return os.WriteFile(s.artifactPath(t.ID), data, 0o644)
}
