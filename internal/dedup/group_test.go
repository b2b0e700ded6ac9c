package dedup

import (
	"testing"

	"github.com/reelsweep/reelsweep/internal/media"
)

func TestGroupsFiltersSingleVersions(t *testing.T) {
	items := []media.ItemVersions{
		{
			Item:     media.Item{ID: "1", Title: "Single"},
			Versions: []media.Version{{Path: "a.mkv"}},
		},
		{
			Item:     media.Item{ID: "2", Title: "Double"},
			Versions: []media.Version{{Path: "b.mkv"}, {Path: "c.mkv"}},
		},
		{
			Item:     media.Item{ID: "3", Title: "None"},
			Versions: nil,
		},
		{
			Item:     media.Item{ID: "4", Title: "Triple"},
			Versions: []media.Version{{Path: "d.mkv"}, {Path: "e.mkv"}, {Path: "f.mkv"}},
		},
	}

	groups := Groups(items)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if groups[0].Item.ID != "2" || groups[1].Item.ID != "4" {
		t.Errorf("groups out of input order: %s, %s", groups[0].Item.ID, groups[1].Item.ID)
	}
	if len(groups[1].Versions) != 3 {
		t.Errorf("group versions = %d, want 3", len(groups[1].Versions))
	}
}

func TestGroupsEmptyInput(t *testing.T) {
	if got := Groups(nil); len(got) != 0 {
		t.Errorf("Groups(nil) = %v, want empty", got)
	}
}
