package engine_test

import (
	"testing"
	"time"

	"vintner/internal/domain"
	"vintner/internal/engine"
)

func TestTickNeverOvershootsTotal(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Flat", 5, 250)

	// 5 acres x clearing rate 8 = 40 work
	act, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID)
	if err != nil {
		t.Fatalf("start clearing: %v", err)
	}
	if act.TotalWork != 40 {
		t.Fatalf("expected 40 total work, got %.2f", act.TotalWork)
	}

	s := addStaff(t, env, 100, 0, 0, 0)
	assign(t, env, act.ID, s.ID)

	rep, err := env.Engine.AdvanceWeek(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	tick := rep.Activities[0]
	if tick.Delta != 40 {
		t.Fatalf("expected delta capped at remaining 40, got %.2f", tick.Delta)
	}
	if !tick.Completed || tick.Fraction != 1 {
		t.Fatalf("expected completion at fraction 1, got %+v", tick)
	}
}

func TestZeroCapacityIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Idle", 2, 250)

	act, err := env.Engine.StartPlanting(env.Ctx, testGame, v.ID, "Merlot", 800, 0)
	if err != nil {
		t.Fatalf("start planting: %v", err)
	}

	// nobody assigned: three ticks, no progress, no callbacks
	for i := 0; i < 3; i++ {
		rep, err := env.Engine.AdvanceWeek(env.Ctx, testGame)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		tick := rep.Activities[0]
		if tick.Delta != 0 || tick.Completed || tick.HandlerErr != "" {
			t.Fatalf("idle activity should be untouched: %+v", tick)
		}
	}

	got, err := env.Engine.Repo.GetActivity(env.Ctx, act.ID)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	if got.AppliedWork != 0 {
		t.Fatalf("applied work should stay 0, got %.2f", got.AppliedWork)
	}
	plot, _ := env.Engine.Repo.GetVineyard(env.Ctx, v.ID)
	if plot.Status != domain.VineyardBarren {
		t.Fatalf("no progress callback should have fired, status %q", plot.Status)
	}
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Once", 1, 250)

	act, err := env.Engine.StartPlanting(env.Ctx, testGame, v.ID, "Chardonnay", 1000, 0)
	if err != nil {
		t.Fatalf("start planting: %v", err)
	}
	s := addStaff(t, env, act.TotalWork*2, 0, 0, 0)
	assign(t, env, act.ID, s.ID)

	for i := 0; i < 3; i++ {
		if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	planted, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, testGame, "vineyard.planted", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(planted) != 1 {
		t.Fatalf("completion must fire exactly once, saw %d vineyard.planted events", len(planted))
	}
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, act.ID); err == nil {
		t.Fatalf("completed activity should be gone")
	}
}

func TestPartialHarvestNeverDoubleCounts(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Ripe", 2, 250)
	v = growVineyard(t, env, v, "Nebbiolo", 500, 0.5)

	// expected yield: 2 acres x 500 vines x 2 kg x 0.5 ripeness = 1000 kg
	// work: 1000 x 0.08 = 80
	act, err := env.Engine.StartHarvest(env.Ctx, testGame, v.ID, 0)
	if err != nil {
		t.Fatalf("start harvest: %v", err)
	}
	if act.TotalWork != 80 {
		t.Fatalf("expected 80 total work, got %.2f", act.TotalWork)
	}

	s := addStaff(t, env, 40, 0, 0, 0)
	assign(t, env, act.ID, s.ID)

	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	batches, err := env.Engine.Repo.ListBatches(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(batches))
	}
	if batches[0].QuantityKg != 500 {
		t.Fatalf("expected 500 kg after half the work, got %.2f", batches[0].QuantityKg)
	}

	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	batches, _ = env.Engine.Repo.ListBatches(env.Ctx, testGame)
	if len(batches) != 1 {
		t.Fatalf("completion must reuse the batch, got %d", len(batches))
	}
	if batches[0].QuantityKg != 1000 {
		t.Fatalf("expected exactly 1000 kg, got %.2f", batches[0].QuantityKg)
	}
	if batches[0].Stage != domain.StageGrapes {
		t.Fatalf("fresh harvest should be grapes, got %s", batches[0].Stage)
	}
	plot, _ := env.Engine.Repo.GetVineyard(env.Ctx, v.ID)
	if plot.Status != domain.VineyardHarvested || plot.Ripeness != 0 {
		t.Fatalf("vineyard should be harvested with ripeness reset: %+v", plot)
	}
}

func TestHandlerFailureDoesNotHaltTick(t *testing.T) {
	env := newTestEnv(t)

	// a crushing activity pointing at a batch that does not exist
	broken, err := env.Engine.CreateActivity(env.Ctx, engine.CreateActivityOptions{
		ID:          "broken-crush",
		GameID:      testGame,
		Category:    domain.CategoryCrushing,
		TotalWork:   10,
		Params:      domain.CrushingParams{BatchID: "no-such-batch"},
		Cancellable: true,
	})
	if err != nil {
		t.Fatalf("create broken activity: %v", err)
	}

	v := buyVineyard(t, env, "Healthy", 5, 250)
	healthy, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID)
	if err != nil {
		t.Fatalf("start clearing: %v", err)
	}

	s := addStaff(t, env, 100, 0, 0, 0)
	assign(t, env, broken.ID, s.ID)
	assign(t, env, healthy.ID, s.ID)

	rep, err := env.Engine.AdvanceWeek(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("a handler failure must not fail the tick: %v", err)
	}

	ticks := map[string]engine.ActivityTick{}
	for _, tick := range rep.Activities {
		ticks[tick.ActivityID] = tick
	}
	if ticks[broken.ID].HandlerErr == "" {
		t.Fatalf("expected handler error on broken activity")
	}
	if ticks[healthy.ID].Delta == 0 {
		t.Fatalf("later activity should still progress")
	}

	// terminal even though the handler failed
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, broken.ID); err == nil {
		t.Fatalf("failed completion is still terminal")
	}
	failures, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, testGame, "activity.callback_failed", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("expected one callback_failed event, got %d", len(failures))
	}
}

func TestSeasonRolloverAndRipening(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Calendar", 1, 250)
	growVineyard(t, env, v, "Barbera", 600, 0)

	for i := 0; i < domain.WeeksPerSeason; i++ {
		if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	g, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if g.Season != "summer" || g.Week != 1 || g.Year != 1 {
		t.Fatalf("expected summer week 1 year 1, got %s week %d year %d", g.Season, g.Week, g.Year)
	}

	plot, _ := env.Engine.Repo.GetVineyard(env.Ctx, v.ID)
	if plot.VineAge != 1 {
		t.Fatalf("vine age should bump on the season turn, got %d", plot.VineAge)
	}
	if plot.Ripeness <= 0 || plot.Ripeness > 1 {
		t.Fatalf("growing vines should ripen within bounds, got %.2f", plot.Ripeness)
	}
}

func TestWagesPaidEachWeek(t *testing.T) {
	env := newTestEnv(t)
	now := env.Engine.Now().UTC().Format(time.RFC3339)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := env.Engine.Repo.InsertStaffTx(env.Ctx, tx, domain.Staff{
		ID: "paid-1", GameID: testGame, Name: "Paid Hand",
		WeeklyWork: 40, WeeklyWage: 400, HiredAt: now,
	}); err != nil {
		t.Fatalf("insert staff: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	before, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}
	after, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if after.Cash != before.Cash-400 {
		t.Fatalf("expected wages of 400 debited, got %.2f -> %.2f", before.Cash, after.Cash)
	}
}

func TestBookkeepingCompletionRaisesPrestige(t *testing.T) {
	env := newTestEnv(t)
	act, err := env.Engine.StartBookkeeping(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("start bookkeeping: %v", err)
	}
	// fresh game: one ledger row (starting capital)
	if !almostEqual(act.TotalWork, 1.5) {
		t.Fatalf("expected 1.5 total work for a one-row ledger, got %.2f", act.TotalWork)
	}
	s := addStaff(t, env, 30, 0, 0, 0)
	assign(t, env, act.ID, s.ID)

	before, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	rep, err := env.Engine.AdvanceWeek(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rep.Activities) != 1 || !rep.Activities[0].Completed {
		t.Fatalf("expected bookkeeping to complete in one tick: %+v", rep.Activities)
	}

	after, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if !almostEqual(after.Prestige-before.Prestige, 0.22) {
		t.Fatalf("expected prestige gain of 0.22 to survive the tick, got %.2f -> %.2f", before.Prestige, after.Prestige)
	}
	if after.Cash != before.Cash {
		t.Fatalf("bookkeeping should not move cash, got %.2f -> %.2f", before.Cash, after.Cash)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, testGame, "books.balanced", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one books.balanced event, got %d", len(evts))
	}
}

func TestLoanRetiredWhenPaidOff(t *testing.T) {
	env := newTestEnv(t)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	loan := domain.Loan{
		ID: "loan-1", GameID: testGame, Lender: "Crestview Rural Bank",
		Outstanding: 100, WeeklyPayment: 60,
		CreatedAt: env.Engine.Now().UTC().Format(time.RFC3339),
	}
	if err := env.Engine.Repo.InsertLoanTx(env.Ctx, tx, loan); err != nil {
		t.Fatalf("insert loan: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	before, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	loans, _ := env.Engine.Repo.ListLoans(env.Ctx, testGame)
	if len(loans) != 1 || loans[0].Outstanding != 40 {
		t.Fatalf("expected 40 outstanding, got %+v", loans)
	}

	// the final payment is the remainder, not the full installment
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	loans, _ = env.Engine.Repo.ListLoans(env.Ctx, testGame)
	if len(loans) != 0 {
		t.Fatalf("repaid loan should be retired, got %+v", loans)
	}
	after, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if after.Cash != before.Cash-100 {
		t.Fatalf("expected exactly 100 paid in total, got %.2f -> %.2f", before.Cash, after.Cash)
	}
	repaid, _ := env.Engine.Repo.LatestEvents(env.Ctx, 10, testGame, "loan.repaid", "", "")
	if len(repaid) != 1 {
		t.Fatalf("expected one loan.repaid event, got %d", len(repaid))
	}
}

func TestCrushAndFermentStages(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Cellar Plot", 1, 250)

	now := env.Engine.Now().UTC().Format(time.RFC3339)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	batch := domain.WineBatch{
		ID: "batch-1", GameID: testGame, VineyardID: v.ID, Grape: "Nebbiolo",
		Stage: domain.StageGrapes, QuantityKg: 200, CreatedAt: now, UpdatedAt: now,
	}
	if err := env.Engine.Repo.InsertBatchTx(env.Ctx, tx, batch); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	crush, err := env.Engine.StartCrushing(env.Ctx, testGame, batch.ID)
	if err != nil {
		t.Fatalf("start crushing: %v", err)
	}
	s := addStaff(t, env, 200, 0, 1, 0)
	assign(t, env, crush.ID, s.ID)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}

	b, _ := env.Engine.Repo.GetBatch(env.Ctx, batch.ID)
	if b.Stage != domain.StageMust {
		t.Fatalf("expected must, got %s", b.Stage)
	}
	wantLiters := 200 * env.Engine.Config.Vineyard.LitersPerKg
	if b.Liters != wantLiters {
		t.Fatalf("expected %.2f liters, got %.2f", wantLiters, b.Liters)
	}

	ferment, err := env.Engine.StartFermentation(env.Ctx, testGame, batch.ID)
	if err != nil {
		t.Fatalf("start fermentation: %v", err)
	}
	if ferment.Cancellable {
		t.Fatalf("fermentation must not be cancellable")
	}
	assign(t, env, ferment.ID, s.ID)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}
	b, _ = env.Engine.Repo.GetBatch(env.Ctx, batch.ID)
	if b.Stage != domain.StageWine {
		t.Fatalf("expected wine, got %s", b.Stage)
	}
}
