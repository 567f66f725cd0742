package players

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kingrea/loups-garous/internal/game"
)

// ParseRoster seats the players of a "name=variant,name=variant" list in the
// order given. Ids are derived from the names.
func ParseRoster(seating string) (*Registry, error) {
	r := New()
	for _, entry := range strings.Split(seating, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, variant, ok := strings.Cut(entry, "=")
		name, variant = strings.TrimSpace(name), strings.TrimSpace(variant)
		if !ok || name == "" || variant == "" {
			return nil, fmt.Errorf("players: roster entry %q must look like name=variant", entry)
		}
		id := SlugID(name)
		if err := r.Add(id, name); err != nil {
			return nil, err
		}
		if err := r.Assign(id, game.VariantID(strings.ToLower(variant))); err != nil {
			return nil, err
		}
	}
	if r.Len() == 0 {
		return nil, fmt.Errorf("players: roster is empty")
	}
	return r, nil
}

// SlugID lowercases a display name and folds everything but letters and
// digits into single dashes.
func SlugID(name string) game.PlayerID {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return game.PlayerID(strings.TrimSuffix(b.String(), "-"))
}
