package families

import "fmt"

// InMemoryRepository is a test helper that implements Repository.
type InMemoryRepository struct {
	families map[string]MetricFamily
}

// NewInMemoryRepository creates a new in-memory family repository for testing.
func NewInMemoryRepository(fams []MetricFamily) *InMemoryRepository {
	repo := &InMemoryRepository{families: make(map[string]MetricFamily)}
	for _, fam := range fams {
		repo.families[fam.Name] = fam
	}
	return repo
}

func (r *InMemoryRepository) Get(name string) (*MetricFamily, error) {
	if fam, ok := r.families[name]; ok {
		return &fam, nil
	}
	return nil, fmt.Errorf("metric family %q not found", name)
}

func (r *InMemoryRepository) List() []MetricFamily {
	out := make([]MetricFamily, 0, len(r.families))
	for _, fam := range r.families {
		out = append(out, fam)
	}
	return out
}
