package roles

import (
	"fmt"
	"strings"

	"github.com/kingrea/loups-garous/internal/game"
)

// DefaultBehavior is used when a definition does not name one.
const DefaultBehavior = "passive"

// CatalogDefinition is the on-disk schema of a role catalog.
type CatalogDefinition struct {
	Name     string              `json:"name,omitempty" yaml:"name,omitempty"`
	Variants []VariantDefinition `json:"variants" yaml:"variants"`
}

// VariantDefinition declares one role variant.
type VariantDefinition struct {
	ID           string              `json:"id" yaml:"id"`
	Name         string              `json:"name,omitempty" yaml:"name,omitempty"`
	Team         string              `json:"team" yaml:"team"`
	Description  string              `json:"description,omitempty" yaml:"description,omitempty"`
	WakesAtNight bool                `json:"wakes_at_night" yaml:"wakes_at_night"`
	Frequency    FrequencyDefinition `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Weight       int                 `json:"weight,omitempty" yaml:"weight,omitempty"`
	TeamWide     bool                `json:"team_wide,omitempty" yaml:"team_wide,omitempty"`
	Behavior     string              `json:"behavior,omitempty" yaml:"behavior,omitempty"`
}

// FrequencyDefinition declares a wake-up rule.
type FrequencyDefinition struct {
	Kind      string `json:"kind" yaml:"kind"`
	Every     int    `json:"every,omitempty" yaml:"every,omitempty"`
	Start     int    `json:"start,omitempty" yaml:"start,omitempty"`
	Predicate string `json:"predicate,omitempty" yaml:"predicate,omitempty"`
}

// Normalized returns a trimmed copy with defaults applied.
func (def VariantDefinition) Normalized() VariantDefinition {
	clone := VariantDefinition{
		ID:           strings.TrimSpace(def.ID),
		Name:         strings.TrimSpace(def.Name),
		Team:         strings.ToLower(strings.TrimSpace(def.Team)),
		Description:  strings.TrimSpace(def.Description),
		WakesAtNight: def.WakesAtNight,
		Weight:       def.Weight,
		TeamWide:     def.TeamWide,
		Behavior:     normalizeName(def.Behavior),
		Frequency: FrequencyDefinition{
			Kind:      normalizeName(def.Frequency.Kind),
			Every:     def.Frequency.Every,
			Start:     def.Frequency.Start,
			Predicate: normalizeName(def.Frequency.Predicate),
		},
	}
	if clone.Behavior == "" {
		clone.Behavior = DefaultBehavior
	}
	if clone.WakesAtNight && clone.Frequency.Kind == "" {
		clone.Frequency.Kind = string(EveryNight)
	}
	return clone
}

// Validate ensures the definition is well-formed. Behaviour and predicate
// names are checked against the catalog at registration time.
func (def VariantDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("roles: id is required")
	}
	if normalized.Team == "" {
		return fmt.Errorf("roles: team is required for %s", normalized.ID)
	}
	if !normalized.WakesAtNight {
		return nil
	}
	freq := Frequency{
		Kind:          FrequencyKind(normalized.Frequency.Kind),
		Every:         normalized.Frequency.Every,
		Start:         normalized.Frequency.Start,
		PredicateName: normalized.Frequency.Predicate,
	}
	return freq.validate(game.VariantID(normalized.ID))
}

// Validate checks every variant and rejects duplicate ids.
func (def CatalogDefinition) Validate() error {
	if len(def.Variants) == 0 {
		return fmt.Errorf("roles: catalog %q declares no variants", def.Name)
	}
	seen := map[string]struct{}{}
	for idx, v := range def.Variants {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("roles: variant[%d]: %w", idx, err)
		}
		id := strings.TrimSpace(v.ID)
		if _, exists := seen[id]; exists {
			return fmt.Errorf("roles: duplicate variant id %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Merge appends the variants of other, letting other override variants with
// the same id.
func (def CatalogDefinition) Merge(other CatalogDefinition) CatalogDefinition {
	out := CatalogDefinition{Name: def.Name}
	index := map[string]int{}
	for _, v := range def.Variants {
		index[strings.TrimSpace(v.ID)] = len(out.Variants)
		out.Variants = append(out.Variants, v)
	}
	for _, v := range other.Variants {
		id := strings.TrimSpace(v.ID)
		if pos, ok := index[id]; ok {
			out.Variants[pos] = v
			continue
		}
		index[id] = len(out.Variants)
		out.Variants = append(out.Variants, v)
	}
	return out
}
