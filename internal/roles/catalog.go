package roles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/loups-garous/internal/game"
)

// Catalog maintains role variants plus the behaviours and predicates they can
// reference by name. It is read-only once frozen.
type Catalog struct {
	mu         sync.RWMutex
	variants   map[game.VariantID]*Variant
	behaviors  map[string]Behavior
	predicates map[string]Predicate
	frozen     bool
}

// NewCatalog returns a catalog preloaded with the built-in behaviours and
// predicates but no variants.
func NewCatalog() *Catalog {
	c := &Catalog{
		variants:   map[game.VariantID]*Variant{},
		behaviors:  map[string]Behavior{},
		predicates: map[string]Predicate{},
	}
	registerBuiltins(c)
	return c
}

// RegisterBehavior installs a named behaviour. Returns an error if the name
// already exists.
func (c *Catalog) RegisterBehavior(name string, behavior Behavior) error {
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("roles: behavior name is required")
	}
	if behavior == nil {
		return fmt.Errorf("roles: behavior %s is nil", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("roles: catalog is frozen")
	}
	if _, exists := c.behaviors[name]; exists {
		return fmt.Errorf("roles: behavior %s already registered", name)
	}
	c.behaviors[name] = behavior
	return nil
}

// RegisterPredicate installs a named custom wake-up predicate.
func (c *Catalog) RegisterPredicate(name string, predicate Predicate) error {
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("roles: predicate name is required")
	}
	if predicate == nil {
		return fmt.Errorf("roles: predicate %s is nil", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("roles: catalog is frozen")
	}
	if _, exists := c.predicates[name]; exists {
		return fmt.Errorf("roles: predicate %s already registered", name)
	}
	c.predicates[name] = predicate
	return nil
}

// Register builds a variant from its definition and adds it to the catalog.
func (c *Catalog) Register(def VariantDefinition) error {
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("roles: catalog is frozen")
	}
	id := game.VariantID(def.ID)
	if _, exists := c.variants[id]; exists {
		return fmt.Errorf("roles: %s already registered", id)
	}
	behavior, ok := c.behaviors[def.Behavior]
	if !ok {
		return fmt.Errorf("roles: %s references unknown behavior %q", id, def.Behavior)
	}
	freq := Frequency{
		Kind:          FrequencyKind(def.Frequency.Kind),
		Every:         def.Frequency.Every,
		Start:         def.Frequency.Start,
		PredicateName: def.Frequency.Predicate,
	}
	if freq.Kind == Custom {
		predicate, ok := c.predicates[freq.PredicateName]
		if !ok {
			return fmt.Errorf("roles: %s references unknown predicate %q", id, freq.PredicateName)
		}
		freq.predicate = predicate
	}
	c.variants[id] = &Variant{
		ID:           id,
		Name:         def.Name,
		Team:         game.Team(def.Team),
		Description:  def.Description,
		WakesAtNight: def.WakesAtNight,
		Frequency:    freq,
		Weight:       def.Weight,
		TeamWide:     def.TeamWide,
		BehaviorName: def.Behavior,
		Behavior:     behavior,
	}
	return nil
}

// MustRegister panics if registration fails.
func (c *Catalog) MustRegister(def VariantDefinition) {
	if err := c.Register(def); err != nil {
		panic(err)
	}
}

// Load registers every variant of a catalog definition.
func (c *Catalog) Load(def CatalogDefinition) error {
	for _, v := range def.Variants {
		if err := c.Register(v); err != nil {
			return err
		}
	}
	return nil
}

// Freeze makes the catalog read-only. Games freeze their catalog before the
// first night so variants stay immutable for the game's lifetime.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// DefinitionsFor resolves variant ids to their definitions ordered by weight,
// then id. Any unregistered id fails the whole lookup.
func (c *Catalog) DefinitionsFor(ids []game.VariantID) ([]*Variant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[game.VariantID]struct{}, len(ids))
	out := make([]*Variant, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		v, ok := c.variants[id]
		if !ok {
			return nil, &game.UnknownRoleError{ID: id}
		}
		out = append(out, v)
	}
	SortVariants(out)
	return out, nil
}

// Variant retrieves a single definition.
func (c *Catalog) Variant(id game.VariantID) (*Variant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variants[id]
	return v, ok
}

// IDs returns the registered variant ids, sorted.
func (c *Catalog) IDs() []game.VariantID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]game.VariantID, 0, len(c.variants))
	for id := range c.variants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SortVariants orders variants by weight ascending with the id as tie-break.
func SortVariants(values []*Variant) {
	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Weight != values[j].Weight {
			return values[i].Weight < values[j].Weight
		}
		return values[i].ID < values[j].ID
	})
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
