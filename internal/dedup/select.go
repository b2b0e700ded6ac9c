package dedup

import (
	"errors"
	"fmt"

	"github.com/reelsweep/reelsweep/internal/media"
)

// Strategy selects which version of a duplicate group to keep.
type Strategy string

const (
	StrategyBestQuality Strategy = "best_quality"
	StrategyLargestFile Strategy = "largest_file"
	StrategyNewest      Strategy = "newest"
)

// ErrEmptyGroup is a contract violation: the grouper never emits groups
// with fewer than two versions.
var ErrEmptyGroup = errors.New("duplicate group has no versions")

// ParseStrategy validates a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyBestQuality, StrategyLargestFile, StrategyNewest:
		return Strategy(name), nil
	default:
		return "", fmt.Errorf("unknown keep strategy %q", name)
	}
}

// Selection is the outcome of picking a keeper for one group.
type Selection struct {
	KeeperIndex int             `json:"keeperIndex"`
	Keeper      media.Version   `json:"keeper"`
	Reason      string          `json:"reason"`
	Scores      []ScoredVersion `json:"scores"`
}

// SelectKeeper picks exactly one keeper from a group. Ties are broken by a
// fixed chain ending in stable input order, so re-running selection on the
// same snapshot always yields the same keeper.
func SelectKeeper(group media.DuplicateGroup, strategy Strategy) (Selection, error) {
	if len(group.Versions) == 0 {
		return Selection{}, ErrEmptyGroup
	}

	scores := ScoreAll(group.Versions)

	var better func(candidate, best int) bool
	var reason func(best int) string

	switch strategy {
	case StrategyLargestFile:
		better = func(c, b int) bool {
			return largestFileLess(scores[b], scores[c])
		}
		reason = func(b int) string {
			return fmt.Sprintf("Largest file: %.2f GB", scores[b].Version.SizeGB())
		}
	case StrategyNewest:
		better = func(c, b int) bool {
			return newestLess(scores[b], scores[c])
		}
		reason = func(b int) string {
			return fmt.Sprintf("Most recently added: %s",
				scores[b].Version.AddedAt.Format("2006-01-02"))
		}
	default: // StrategyBestQuality
		better = func(c, b int) bool {
			return bestQualityLess(scores[b], scores[c])
		}
		reason = func(b int) string {
			return fmt.Sprintf("Highest quality score: %.2f", scores[b].Score.Total)
		}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		// Strict improvement only: on a full tie the first encountered wins.
		if better(i, best) {
			best = i
		}
	}

	return Selection{
		KeeperIndex: best,
		Keeper:      scores[best].Version,
		Reason:      reason(best),
		Scores:      scores,
	}, nil
}

// bestQualityLess orders by score total, then file size, then added time.
func bestQualityLess(a, b ScoredVersion) bool {
	if a.Score.Total != b.Score.Total {
		return a.Score.Total < b.Score.Total
	}
	if a.Version.Size != b.Version.Size {
		return a.Version.Size < b.Version.Size
	}
	return a.Version.AddedAt.Before(b.Version.AddedAt)
}

// largestFileLess orders by file size, then added time. Score is not a
// tiebreak here.
func largestFileLess(a, b ScoredVersion) bool {
	if a.Version.Size != b.Version.Size {
		return a.Version.Size < b.Version.Size
	}
	return a.Version.AddedAt.Before(b.Version.AddedAt)
}

// newestLess orders by added time, then file size.
func newestLess(a, b ScoredVersion) bool {
	if !a.Version.AddedAt.Equal(b.Version.AddedAt) {
		return a.Version.AddedAt.Before(b.Version.AddedAt)
	}
	return a.Version.Size < b.Version.Size
}
