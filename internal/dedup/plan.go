package dedup

import (
	"github.com/reelsweep/reelsweep/internal/media"
)

// ActionType identifies one step of a removal.
type ActionType string

const (
	// ActionUnmonitor stops the owning source service from re-acquiring
	// the item. Always planned before the file removal.
	ActionUnmonitor ActionType = "unmonitor"
	// ActionRemoveFile deletes the version or relocates it to the
	// configured recycle directory.
	ActionRemoveFile ActionType = "remove_file"
)

// ActionState is the lifecycle of one action. Pending moves to Simulated on
// a dry run, or through Executing to Succeeded/Failed on a live run.
// Skipped records an action deliberately not attempted. There is no way
// back to Pending and no implicit retry.
type ActionState string

const (
	StatePending   ActionState = "pending"
	StateSimulated ActionState = "simulated"
	StateExecuting ActionState = "executing"
	StateSucceeded ActionState = "succeeded"
	StateFailed    ActionState = "failed"
	StateSkipped   ActionState = "skipped"
)

// Action is one planned step against one non-keeper version.
type Action struct {
	Type    ActionType    `json:"type"`
	Version media.Version `json:"version"`
	State   ActionState   `json:"state"`
	Reason  string        `json:"reason,omitempty"`
}

// Plan is the full resolution for one duplicate group: the keeper, the
// per-version score evidence, and the ordered actions for every version
// that goes.
type Plan struct {
	Item        media.Item      `json:"item"`
	Keeper      media.Version   `json:"keeper"`
	KeeperScore Breakdown       `json:"keeperScore"`
	Reason      string          `json:"reason"`
	Scores      []ScoredVersion `json:"scores"`
	Actions     []Action        `json:"actions"`
	SpaceSaved  int64           `json:"spaceSaved"`
}

// SpaceSavedGB returns the reclaimable bytes in gibibytes.
func (p Plan) SpaceSavedGB() float64 {
	return float64(int64(float64(p.SpaceSaved)/(1<<30)*100)) / 100
}

// BuildPlan turns a group and its selection into an ordered action list:
// for each non-keeper version, unmonitor first, then remove. Building a
// plan is pure (no network, no filesystem), so the same group and
// selection always produce the same plan.
func BuildPlan(group media.DuplicateGroup, sel Selection) Plan {
	plan := Plan{
		Item:        group.Item,
		Keeper:      sel.Keeper,
		KeeperScore: sel.Scores[sel.KeeperIndex].Score,
		Reason:      sel.Reason,
		Scores:      sel.Scores,
	}

	for i, v := range group.Versions {
		if i == sel.KeeperIndex {
			continue
		}
		plan.Actions = append(plan.Actions,
			Action{Type: ActionUnmonitor, Version: v, State: StatePending},
			Action{Type: ActionRemoveFile, Version: v, State: StatePending},
		)
		plan.SpaceSaved += v.Size
	}

	return plan
}
