package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vintner/internal/domain"
	"vintner/internal/events"
	"vintner/internal/repo"
)

// CreateActivityOptions are the raw inputs to the registry. Domain
// entrypoints in starters.go build these from estimates and params.
type CreateActivityOptions struct {
	ID          string
	GameID      string
	Category    domain.ActivityCategory
	TargetID    string
	TotalWork   float64
	Params      any
	Cancellable bool
}

// CreateActivity validates and stores a new activity record.
func (e Engine) CreateActivity(ctx context.Context, opts CreateActivityOptions) (domain.Activity, error) {
	if !domain.ValidCategory(opts.Category) {
		return domain.Activity{}, fmt.Errorf("%w: unknown category %q", ErrInvalidActivity, opts.Category)
	}
	if opts.TotalWork <= 0 {
		return domain.Activity{}, fmt.Errorf("%w: total work must be > 0, got %.2f", ErrInvalidActivity, opts.TotalWork)
	}
	if opts.GameID == "" {
		return domain.Activity{}, fmt.Errorf("%w: game id is required", ErrInvalidActivity)
	}
	if _, err := e.Repo.GetGame(ctx, opts.GameID); err != nil {
		return domain.Activity{}, err
	}
	if opts.TargetID != "" {
		// One in-flight activity per target keeps progress accounting unambiguous.
		existing, err := e.Repo.ListActivitiesByTarget(ctx, opts.GameID, opts.TargetID)
		if err != nil {
			return domain.Activity{}, err
		}
		if len(existing) > 0 {
			return domain.Activity{}, fmt.Errorf("%w: target %s already has a pending %s activity", ErrInvalidActivity, opts.TargetID, existing[0].Category)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, err := e.Repo.GetActivity(ctx, id); err == nil {
		return domain.Activity{}, fmt.Errorf("%w: id %s already exists", ErrInvalidActivity, id)
	}
	paramsJSON, err := domain.EncodeParams(opts.Params)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Activity{
		ID:          id,
		GameID:      opts.GameID,
		Category:    opts.Category,
		TotalWork:   opts.TotalWork,
		ParamsJSON:  paramsJSON,
		Cancellable: opts.Cancellable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.TargetID != "" {
		a.TargetID = &opts.TargetID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
		return domain.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "activity.created", a.GameID, "activity", a.ID, events.EventPayload{
		"category":   a.Category,
		"target_id":  opts.TargetID,
		"total_work": a.TotalWork,
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// RetotalActivity recomputes totalWork for an activity whose inputs
// changed before any work was applied. Once work has started the
// total is immutable.
func (e Engine) RetotalActivity(ctx context.Context, activityID string, totalWork float64) (domain.Activity, error) {
	if totalWork <= 0 {
		return domain.Activity{}, fmt.Errorf("%w: total work must be > 0", ErrInvalidActivity)
	}
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return domain.Activity{}, err
	}
	if a.AppliedWork > 0 {
		return domain.Activity{}, fmt.Errorf("%w: work already started on %s", ErrInvalidActivity, activityID)
	}
	a.TotalWork = totalWork
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.retotaled", a.GameID, "activity", a.ID, events.EventPayload{"total_work": totalWork}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// CancelActivity removes an activity without firing its completion
// handler. Cleanup of partially applied domain state is the caller's
// responsibility.
func (e Engine) CancelActivity(ctx context.Context, activityID string) error {
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if !a.Cancellable {
		return fmt.Errorf("%w: %s", ErrNotCancellable, activityID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	existed, err := e.Repo.DeleteActivityTx(ctx, tx, activityID)
	if err != nil {
		return err
	}
	if !existed {
		return repo.ErrNotFound
	}
	if err := e.Events.Append(ctx, tx, "activity.cancelled", a.GameID, "activity", a.ID, events.EventPayload{
		"category": a.Category,
		"fraction": a.Fraction(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AssignStaff books a staff member onto an activity. The change takes
// effect at the next tick; capacity snapshots never see mid-tick
// reassignment.
func (e Engine) AssignStaff(ctx context.Context, activityID, staffID string) error {
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	s, err := e.Repo.GetStaff(ctx, staffID)
	if err != nil {
		return err
	}
	if s.GameID != a.GameID {
		return fmt.Errorf("staff %s not in game %s", staffID, a.GameID)
	}
	return e.Repo.Assign(ctx, activityID, staffID, e.now().UTC().Format(time.RFC3339))
}

// UnassignStaff removes a booking.
func (e Engine) UnassignStaff(ctx context.Context, activityID, staffID string) error {
	return e.Repo.Unassign(ctx, activityID, staffID)
}
