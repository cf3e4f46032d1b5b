package scenario

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Scenario is one sampled generation context.
type Scenario struct {
	ID      string
	Intent  Intent
	Domain  string
	Persona string
	// Style is drawn for the record of what was sampled. The orchestrator
	// picks its own style per provider call.
	Style Style
}

// Sampler draws scenarios from a catalog. It is safe for concurrent use.
type Sampler struct {
	catalog *Catalog
	total   float64

	mu  sync.Mutex
	rng *rand.Rand

	newID func() string
}

// NewSampler returns a sampler over c using rng. A nil rng is seeded from
// the global source.
func NewSampler(c *Catalog, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63())) // #nosec G404 -- sampling, not security
	}
	var total float64
	for _, in := range c.Intents {
		total += in.Weight
	}
	return &Sampler{catalog: c, total: total, rng: rng, newID: uuid.NewString}
}

// Catalog returns the catalog the sampler draws from.
func (s *Sampler) Catalog() *Catalog { return s.catalog }

// Sample draws an intent by weight and a domain, persona and style uniformly.
func (s *Sampler) Sample() Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Scenario{
		ID:      s.newID(),
		Intent:  s.pickIntent(),
		Domain:  s.catalog.Domains[s.rng.Intn(len(s.catalog.Domains))],
		Persona: s.catalog.Personas[s.rng.Intn(len(s.catalog.Personas))],
		Style:   s.catalog.Styles[s.rng.Intn(len(s.catalog.Styles))],
	}
}

// RandomStyle draws one style uniformly.
func (s *Sampler) RandomStyle() Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Styles[s.rng.Intn(len(s.catalog.Styles))]
}

func (s *Sampler) pickIntent() Intent {
	r := s.rng.Float64() * s.total
	for _, in := range s.catalog.Intents {
		r -= in.Weight
		if r < 0 {
			return in
		}
	}
	return s.catalog.Intents[len(s.catalog.Intents)-1]
}
