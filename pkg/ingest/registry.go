package ingest

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/fec-ingest/pkg/store"
	"github.com/Sternrassler/fec-ingest/pkg/validate"
)

// ErrUnknownEntity is returned when an entity name is not registered.
var ErrUnknownEntity = errors.New("unknown entity")

// Entity describes how one FEC resource is ingested.
type Entity struct {
	Name        string
	Endpoint    string
	Table       store.Table
	Params      func(w Window) url.Values
	Transformer Transformer
}

// Candidates ingests /candidates/ filtered by first filing date.
var Candidates = Entity{
	Name:     "candidates",
	Endpoint: "/candidates/",
	Table:    store.CandidatesTable,
	Params: func(w Window) url.Values {
		return url.Values{
			"min_first_file_date": {w.StartDate()},
			"max_first_file_date": {w.EndDate()},
			"sort":                {"candidate_id"},
		}
	},
	Transformer: ValidatingTransformer[validate.Candidate]{
		Validator: validate.CandidateValidator{},
		KeyField:  "candidate_id",
	},
}

// Registry holds entities in dependency order.
type Registry struct {
	entities []Entity
	byName   map[string]int
}

// NewRegistry registers entities in the order given, which is the order
// IngestAll runs them in. Entities referenced by others must come first.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(entities))}
	for _, e := range entities {
		if e.Name == "" {
			return nil, fmt.Errorf("entity name is required")
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("entity %q registered twice", e.Name)
		}
		if e.Transformer == nil {
			return nil, fmt.Errorf("entity %q: transformer is required", e.Name)
		}
		if err := e.Table.Validate(); err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		r.byName[e.Name] = len(r.entities)
		r.entities = append(r.entities, e)
	}
	return r, nil
}

// DefaultRegistry returns the built-in entities.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Candidates)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the entity registered under name.
func (r *Registry) Get(name string) (Entity, error) {
	i, ok := r.byName[name]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEntity, name, r.Names())
	}
	return r.entities[i], nil
}

// Names lists entity names in dependency order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for _, e := range r.entities {
		names = append(names, e.Name)
	}
	return names
}
