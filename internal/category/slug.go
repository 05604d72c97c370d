package category

import (
	"fmt"
	"strings"

	"docvault/pkg/apperr"
	"docvault/pkg/store"
)

const maxSlugAttempts = 50

// slugify lowers the name and collapses every non-alphanumeric run into a
// single hyphen.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// uniqueSlug derives a slug from name and suffixes -1, -2, ... until it is
// unique across all categories, active or not. selfID exempts the category's
// own current slug on rename.
func uniqueSlug(st store.Store, name, selfID string) (string, error) {
	base := slugify(name)
	if base == "" {
		base = "category"
	}
	candidate := base
	for i := 0; i < maxSlugAttempts; i++ {
		existing, ok, err := st.GetCategoryBySlug(candidate)
		if err != nil {
			return "", apperr.Infrastructure(err, "category lookup failed")
		}
		if !ok || existing.ID == selfID {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i+1)
	}
	return "", apperr.Conflict("could not derive a unique slug for %q", name)
}
