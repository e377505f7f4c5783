package families

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MetricFamily describes one logical metrics stream shown on the dashboard.
// Families are loaded at startup from YAML files and fingerprinted; the
// fingerprint is part of the snapshot cache key, so editing a family file
// invalidates cached snapshots on restart.
type MetricFamily struct {
	Name        string   `yaml:"name"`
	RecordTypes []string `yaml:"record_types"` // counter families to fetch and merge, e.g. filtered variants
	Description string   `yaml:"description"`
	Fingerprint string   // SHA-256 of the raw YAML file; computed at load time
}

// Matches reports whether a push notification for recordType concerns this
// family.
func (f MetricFamily) Matches(recordType string) bool {
	for _, rt := range f.RecordTypes {
		if rt == recordType {
			return true
		}
	}
	return false
}

// Repository defines the interface for loading metric families.
type Repository interface {
	// Get returns the family with the given name, or an error if not found.
	Get(name string) (*MetricFamily, error)

	// List returns all loaded families, sorted by name.
	List() []MetricFamily
}

// FileSystemRepository loads metric families from *.yaml files in a
// directory. Each file contains exactly one family at the top level.
// Families are loaded once at startup and cached in memory.
type FileSystemRepository struct {
	dir      string
	families map[string]MetricFamily // keyed by Name
}

// NewFileSystemRepository creates a repository and eagerly loads all family
// files from dir. Returns an error if any file is malformed or invalid.
func NewFileSystemRepository(dir string) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		dir:      dir,
		families: make(map[string]MetricFamily),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // missing directory means zero families configured
	}
	if err != nil {
		return fmt.Errorf("metric family dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("metric family path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading metric family dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading family file %s: %w", path, err)
		}

		var fam MetricFamily
		if err := yaml.Unmarshal(data, &fam); err != nil {
			return fmt.Errorf("parsing family file %s: %w", path, err)
		}
		if fam.Name == "" {
			continue // skip empty / comment-only files
		}

		if len(fam.RecordTypes) == 0 {
			return fmt.Errorf("family %q: record_types must not be empty", fam.Name)
		}
		for _, rt := range fam.RecordTypes {
			if strings.TrimSpace(rt) == "" {
				return fmt.Errorf("family %q: record_types entries must not be blank", fam.Name)
			}
		}

		if _, exists := r.families[fam.Name]; exists {
			return fmt.Errorf("family %q: duplicate family name (check multiple YAML files)", fam.Name)
		}

		fam.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))
		r.families[fam.Name] = fam
	}
	return nil
}

// Get returns the family with the given name, or an error if not found.
func (r *FileSystemRepository) Get(name string) (*MetricFamily, error) {
	fam, ok := r.families[name]
	if !ok {
		return nil, fmt.Errorf("metric family %q not found", name)
	}
	return &fam, nil
}

// List returns all loaded families, sorted by name.
func (r *FileSystemRepository) List() []MetricFamily {
	out := make([]MetricFamily, 0, len(r.families))
	for _, fam := range r.families {
		out = append(out, fam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
