package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/stocktester/internal/models"
)

// Registry resolves strategy template ids to implementations
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry returns a registry holding the built-in strategies
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewMovingAverageCrossover())
	r.Register(NewBollingerBands())
	r.Register(NewMomentumStrategy())
	r.Register(NewMeanReversion())
	return r
}

// Register adds or replaces a strategy under its name
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy with the given template id
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names lists registered template ids in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Templates returns the catalogue of every registered strategy
func (r *Registry) Templates() []models.StrategyTemplate {
	names := r.Names()
	out := make([]models.StrategyTemplate, 0, len(names))
	for _, name := range names {
		s, _ := r.Get(name)
		out = append(out, s.Template())
	}
	return out
}

// Template returns the catalogue entry for one strategy
func (r *Registry) Template(name string) (models.StrategyTemplate, error) {
	s, err := r.Get(name)
	if err != nil {
		return models.StrategyTemplate{}, err
	}
	return s.Template(), nil
}

// ValidateDefinition checks a request's strategy block against the registry
func (r *Registry) ValidateDefinition(def models.StrategyDefinition) error {
	if def.CustomCode != nil && *def.CustomCode != "" {
		return ErrCustomCodeUnsupported
	}
	s, err := r.Get(def.Name)
	if err != nil {
		return err
	}
	return s.Validate(Parameters(def.Parameters))
}
