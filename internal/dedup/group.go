package dedup

import (
	"github.com/reelsweep/reelsweep/internal/media"
)

// Groups filters a catalog snapshot down to items with two or more
// versions. Single-version items are the common case and are dropped
// silently. Input order is preserved so downstream tie-breaking stays
// deterministic for a given snapshot.
func Groups(items []media.ItemVersions) []media.DuplicateGroup {
	groups := make([]media.DuplicateGroup, 0)
	for _, it := range items {
		if len(it.Versions) < 2 {
			continue
		}
		groups = append(groups, media.DuplicateGroup{
			Item:     it.Item,
			Versions: it.Versions,
		})
	}
	return groups
}
