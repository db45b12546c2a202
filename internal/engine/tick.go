package engine

import (
	"context"
	"fmt"
	"time"

	"vintner/internal/domain"
	"vintner/internal/events"
)

// ActivityTick is the per-activity outcome of one week advance.
type ActivityTick struct {
	ActivityID string                  `json:"activity_id"`
	Category   domain.ActivityCategory `json:"category"`
	Delta      float64                 `json:"delta"` // capacity actually consumed
	Fraction   float64                 `json:"fraction"`
	Completed  bool                    `json:"completed"`
	HandlerErr string                  `json:"handler_err,omitempty"`
}

// TickReport summarizes one week advance.
type TickReport struct {
	Game       domain.Game    `json:"game"`
	Activities []ActivityTick `json:"activities"`
}

// AdvanceWeek runs one tick: resolve capacity from a pre-tick
// snapshot, apply work deltas, fire outcome handlers, then run the
// weekly systems (wages, loans, vineyard growth) and move the
// calendar forward.
//
// Handler failures are reported in the ticks and the event log but do
// not stop the tick; a failed registry or game-state write does.
func (e Engine) AdvanceWeek(ctx context.Context, gameID string) (TickReport, error) {
	var report TickReport
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return report, err
	}

	activities, err := e.Repo.ListActivities(ctx, gameID)
	if err != nil {
		return report, fmt.Errorf("snapshot activities: %w", err)
	}
	// Capacity is fully resolved before any appliedWork mutation so a
	// completion cannot free staff for a later activity mid-tick.
	alloc, err := e.ResolveAllocation(ctx, gameID, activities)
	if err != nil {
		return report, fmt.Errorf("resolve allocation: %w", err)
	}

	for _, act := range activities {
		tick, err := e.processActivity(ctx, act, alloc[act.ID])
		report.Activities = append(report.Activities, tick)
		if err != nil {
			return report, err
		}
	}

	if err := e.runWeeklySystems(ctx, g); err != nil {
		return report, err
	}

	report.Game, err = e.Repo.GetGame(ctx, gameID)
	return report, err
}

// processActivity applies one activity's delta and dispatches its
// handler. The appliedWork write commits before the handler runs and
// is never rolled back on handler failure: re-deriving appliedWork is
// cheap, partially applied domain effects are not reliably reversible.
func (e Engine) processActivity(ctx context.Context, act domain.Activity, capacity float64) (ActivityTick, error) {
	tick := ActivityTick{ActivityID: act.ID, Category: act.Category, Fraction: act.Fraction()}

	delta := capacity
	if remaining := act.Remaining(); delta > remaining {
		delta = remaining
	}
	if delta <= 0 {
		// unstaffed or already at total: unchanged, no callbacks
		return tick, nil
	}
	tick.Delta = delta

	act.AppliedWork += delta
	if act.AppliedWork > act.TotalWork {
		act.AppliedWork = act.TotalWork
	}
	act.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	fraction := act.Fraction()
	tick.Fraction = fraction
	completed := fraction >= 1

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return tick, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateActivityTx(ctx, tx, act); err != nil {
		return tick, fmt.Errorf("persist activity %s: %w", act.ID, err)
	}
	if err := e.Events.Append(ctx, tx, "activity.progressed", act.GameID, "activity", act.ID, events.EventPayload{
		"delta":    delta,
		"fraction": fraction,
	}); err != nil {
		return tick, err
	}
	if err := tx.Commit(); err != nil {
		return tick, fmt.Errorf("persist activity %s: %w", act.ID, err)
	}

	handler := e.handlerFor(act.Category)
	if completed {
		if err := handler.Complete(ctx, act); err != nil {
			cbErr := &CallbackError{ActivityID: act.ID, Category: act.Category, Stage: "completion", Err: err}
			tick.HandlerErr = cbErr.Error()
			e.reportCallbackFailure(ctx, act, cbErr)
		}
		// terminal either way; completion is never implicitly retried
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return tick, err
		}
		defer tx.Rollback()
		if _, err := e.Repo.DeleteActivityTx(ctx, tx, act.ID); err != nil {
			return tick, fmt.Errorf("remove completed activity %s: %w", act.ID, err)
		}
		if err := e.Events.Append(ctx, tx, "activity.completed", act.GameID, "activity", act.ID, events.EventPayload{
			"category": act.Category,
		}); err != nil {
			return tick, err
		}
		if err := tx.Commit(); err != nil {
			return tick, fmt.Errorf("remove completed activity %s: %w", act.ID, err)
		}
		tick.Completed = true
		return tick, nil
	}

	if err := handler.Progress(ctx, act, fraction); err != nil {
		cbErr := &CallbackError{ActivityID: act.ID, Category: act.Category, Stage: "progress", Err: err}
		tick.HandlerErr = cbErr.Error()
		e.reportCallbackFailure(ctx, act, cbErr)
	}
	return tick, nil
}

func (e Engine) reportCallbackFailure(ctx context.Context, act domain.Activity, cbErr *CallbackError) {
	// best effort: the failure event must not mask the original error
	_ = e.Events.AppendNoTx(ctx, "activity.callback_failed", act.GameID, "activity", act.ID, events.EventPayload{
		"stage": cbErr.Stage,
		"error": cbErr.Err.Error(),
	})
}

// runWeeklySystems pays wages and loans, grows vineyards, ages wine
// batches, and advances the calendar, all in one transaction.
func (e Engine) runWeeklySystems(ctx context.Context, g domain.Game) error {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	staff, err := e.Repo.ListStaff(ctx, g.ID)
	if err != nil {
		return err
	}
	var wages float64
	for _, s := range staff {
		wages += s.WeeklyWage
	}
	if wages > 0 {
		if err := e.Repo.AdjustCashTx(ctx, tx, g.ID, g.Week, -wages, "weekly wages", now); err != nil {
			return fmt.Errorf("pay wages: %w", err)
		}
	}

	loans, err := e.Repo.ListLoans(ctx, g.ID)
	if err != nil {
		return err
	}
	for _, l := range loans {
		payment := l.WeeklyPayment
		if payment > l.Outstanding {
			payment = l.Outstanding
		}
		if err := e.Repo.AdjustCashTx(ctx, tx, g.ID, g.Week, -payment, "loan payment: "+l.Lender, now); err != nil {
			return fmt.Errorf("loan payment: %w", err)
		}
		l.Outstanding -= payment
		if l.Outstanding <= 0 {
			if err := e.Repo.DeleteLoanTx(ctx, tx, l.ID); err != nil {
				return err
			}
			if err := e.Events.Append(ctx, tx, "loan.repaid", g.ID, "loan", l.ID, events.EventPayload{"lender": l.Lender}); err != nil {
				return err
			}
		} else if err := e.Repo.UpdateLoanTx(ctx, tx, l); err != nil {
			return err
		}
	}

	g.Week++
	seasonTurned := false
	if g.Week > domain.WeeksPerSeason {
		g.Week = 1
		seasonTurned = true
		next := nextSeason(g.Season)
		if next == domain.Seasons[0] {
			g.Year++
		}
		g.Season = next
	}

	vineyards, err := e.Repo.ListVineyards(ctx, g.ID)
	if err != nil {
		return err
	}
	for _, v := range vineyards {
		changed := false
		if seasonTurned && v.Status != domain.VineyardBarren {
			v.VineAge++
			changed = true
		}
		if seasonTurned && g.Season == domain.Seasons[0] && v.Status == domain.VineyardHarvested {
			// harvested vines wake up again in spring
			v.Status = domain.VineyardGrowing
			v.Ripeness = 0
			changed = true
		}
		if v.Status == domain.VineyardGrowing {
			if rate := ripenessRate(g.Season); rate > 0 {
				v.Ripeness += rate
				if v.Ripeness > 1 {
					v.Ripeness = 1
				}
				changed = true
			}
		}
		if changed {
			v.UpdatedAt = now
			if err := e.Repo.UpdateVineyardTx(ctx, tx, v); err != nil {
				return fmt.Errorf("update vineyard %s: %w", v.ID, err)
			}
		}
	}

	batches, err := e.Repo.ListBatches(ctx, g.ID)
	if err != nil {
		return err
	}
	for _, b := range batches {
		b.AgeWeeks++
		b.UpdatedAt = now
		if err := e.Repo.UpdateBatchTx(ctx, tx, b); err != nil {
			return fmt.Errorf("age batch %s: %w", b.ID, err)
		}
	}

	// Scoped clock write: cash and prestige moved through relative
	// adjustments this tick and must not be restored to the snapshot.
	if err := e.Repo.AdvanceClockTx(ctx, tx, g.ID, g.Week, g.Year, g.Season, now); err != nil {
		return fmt.Errorf("advance game clock: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "week.advanced", g.ID, "game", g.ID, events.EventPayload{
		"week":   g.Week,
		"season": g.Season,
		"year":   g.Year,
		"wages":  wages,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func nextSeason(season string) string {
	for i, s := range domain.Seasons {
		if s == season {
			return domain.Seasons[(i+1)%len(domain.Seasons)]
		}
	}
	return domain.Seasons[0]
}

// ripenessRate is the weekly ripeness gain for growing vines.
func ripenessRate(season string) float64 {
	switch season {
	case "spring":
		return 0.03
	case "summer":
		return 0.05
	case "autumn":
		return 0.08
	default:
		return 0
	}
}
