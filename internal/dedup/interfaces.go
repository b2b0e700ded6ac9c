package dedup

import (
	"context"

	"github.com/reelsweep/reelsweep/internal/media"
)

// MediaLibrary is the read side of the catalog plus the catalog-managed
// delete. The engine never cares which server implements it.
type MediaLibrary interface {
	// ListItems returns every item with all of its versions for a scope.
	ListItems(ctx context.Context, scope media.Scope) ([]media.ItemVersions, error)
	// DeleteVersion asks the catalog to delete one physical version.
	DeleteVersion(ctx context.Context, itemID string, mediaID int64) error
	// RefreshAll triggers a rescan of the scanned libraries.
	RefreshAll(ctx context.Context) error
}

// SourceService stops an acquisition service from re-downloading an item.
// Unmonitor is idempotent: unmonitoring an already-unmonitored item reports
// success. found=false means the service does not track the item at all,
// which is a no-op, not an error.
type SourceService interface {
	Unmonitor(ctx context.Context, item media.Item) (found bool, err error)
}

// FileStore performs the filesystem side of removal. Implementations must
// serialize operations per path against the subtitle pipeline.
type FileStore interface {
	Remove(path string) error
	Relocate(path, destDir string) error
}
