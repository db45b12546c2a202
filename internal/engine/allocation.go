package engine

import (
	"context"

	"vintner/internal/domain"
)

// Allocation is the per-activity work capacity resolved for one tick.
// It is computed from a consistent pre-tick snapshot: a completion
// earlier in the tick never frees capacity for a later activity in
// the same tick.
type Allocation map[string]float64

// ResolveAllocation distributes staff capacity across the activities
// they are assigned to. Split policy: a staff member assigned to N
// activities contributes weekly_work/N to each, then the relevant
// skill multiplies the share. Unstaffed activities get zero, which is
// not an error; they simply do not progress.
func (e Engine) ResolveAllocation(ctx context.Context, gameID string, activities []domain.Activity) (Allocation, error) {
	alloc := make(Allocation, len(activities))
	byID := make(map[string]domain.Activity, len(activities))
	for _, a := range activities {
		alloc[a.ID] = 0
		byID[a.ID] = a
	}

	staff, err := e.Repo.ListStaff(ctx, gameID)
	if err != nil {
		return nil, err
	}
	assignments, err := e.Repo.ListAssignments(ctx, gameID)
	if err != nil {
		return nil, err
	}

	perStaff := make(map[string][]string) // staff id -> activity ids
	for _, as := range assignments {
		if _, ok := byID[as.ActivityID]; !ok {
			continue // assignment to an activity outside the snapshot
		}
		perStaff[as.StaffID] = append(perStaff[as.StaffID], as.ActivityID)
	}

	weight := e.Config.Work.SkillWeight
	for _, s := range staff {
		ids := perStaff[s.ID]
		if len(ids) == 0 {
			continue
		}
		share := s.WeeklyWork / float64(len(ids))
		for _, id := range ids {
			act := byID[id]
			skill := s.SkillFor(act.Category.Skill())
			alloc[id] += share * (1 + skill*weight)
		}
	}
	return alloc, nil
}
