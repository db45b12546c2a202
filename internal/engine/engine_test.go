package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"vintner/internal/config"
	"vintner/internal/db"
	"vintner/internal/domain"
	"vintner/internal/engine"
	"vintner/internal/migrate"
)

const testGame = "estate"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default(testGame)
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.NewGame(ctx, testGame, "Test Estate"); err != nil {
		t.Fatalf("new game: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

var staffSeq int

// addStaff inserts a ready staff member directly, bypassing the
// search and hiring flow.
func addStaff(t *testing.T, env testEnv, weeklyWork, skillField, skillCellar, skillAdmin float64) domain.Staff {
	t.Helper()
	staffSeq++
	now := env.Engine.Now().UTC().Format(time.RFC3339)
	s := domain.Staff{
		ID:          fmt.Sprintf("staff-%d", staffSeq),
		GameID:      testGame,
		Name:        fmt.Sprintf("Worker %d", staffSeq),
		WeeklyWork:  weeklyWork,
		SkillField:  skillField,
		SkillCellar: skillCellar,
		SkillAdmin:  skillAdmin,
		HiredAt:     now,
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.InsertStaffTx(env.Ctx, tx, s); err != nil {
		t.Fatalf("insert staff: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit staff: %v", err)
	}
	return s
}

func buyVineyard(t *testing.T, env testEnv, name string, acres, altitude float64) domain.Vineyard {
	t.Helper()
	v, err := env.Engine.BuyVineyard(env.Ctx, testGame, name, acres, altitude, 0)
	if err != nil {
		t.Fatalf("buy vineyard: %v", err)
	}
	return v
}

func assign(t *testing.T, env testEnv, activityID, staffID string) {
	t.Helper()
	if err := env.Engine.AssignStaff(env.Ctx, activityID, staffID); err != nil {
		t.Fatalf("assign %s to %s: %v", staffID, activityID, err)
	}
}

func growVineyard(t *testing.T, env testEnv, v domain.Vineyard, grape string, density int, ripeness float64) domain.Vineyard {
	t.Helper()
	v.Grape = grape
	v.Density = density
	v.Status = domain.VineyardGrowing
	v.Ripeness = ripeness
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.UpdateVineyardTx(env.Ctx, tx, v); err != nil {
		t.Fatalf("update vineyard: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit vineyard: %v", err)
	}
	return v
}

func TestNewGameSeedsClockAndCash(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if g.Week != 1 || g.Season != "spring" || g.Year != 1 {
		t.Fatalf("expected week 1 spring year 1, got %d %s %d", g.Week, g.Season, g.Year)
	}
	if g.Cash != env.Engine.Config.Game.StartingCash {
		t.Fatalf("expected starting cash %.2f, got %.2f", env.Engine.Config.Game.StartingCash, g.Cash)
	}
	txs, err := env.Engine.Repo.ListTransactions(env.Ctx, testGame, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Reason != "starting capital" {
		t.Fatalf("expected a starting capital transaction, got %+v", txs)
	}
}

func TestBuyVineyardDebitsCash(t *testing.T) {
	env := newTestEnv(t)
	before, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)

	v, err := env.Engine.BuyVineyard(env.Ctx, testGame, "North Slope", 4, 300, 25000)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if v.Status != domain.VineyardBarren {
		t.Fatalf("new plot should be barren, got %s", v.Status)
	}

	after, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if after.Cash != before.Cash-25000 {
		t.Fatalf("expected cash %.2f, got %.2f", before.Cash-25000, after.Cash)
	}

	// cannot overspend
	if _, err := env.Engine.BuyVineyard(env.Ctx, testGame, "Too Big", 100, 300, after.Cash+1); err == nil {
		t.Fatalf("expected insufficient cash error")
	}
}

func TestPlantingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "North Slope", 3, 250)

	// 3 acres x rate 20 x density 1000/1000, neutral factors
	act, err := env.Engine.StartPlanting(env.Ctx, testGame, v.ID, "Sangiovese", 1000, 0)
	if err != nil {
		t.Fatalf("start planting: %v", err)
	}
	if act.TotalWork != 60 {
		t.Fatalf("expected 60 total work, got %.2f", act.TotalWork)
	}

	s := addStaff(t, env, 30, 0, 0, 0)
	assign(t, env, act.ID, s.ID)

	rep, err := env.Engine.AdvanceWeek(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if len(rep.Activities) != 1 || rep.Activities[0].Delta != 30 || rep.Activities[0].Completed {
		t.Fatalf("unexpected tick 1 report: %+v", rep.Activities)
	}
	mid, _ := env.Engine.Repo.GetVineyard(env.Ctx, v.ID)
	if mid.Status != "Planting: 50%" {
		t.Fatalf("expected progress status, got %q", mid.Status)
	}

	rep, err = env.Engine.AdvanceWeek(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if !rep.Activities[0].Completed || rep.Activities[0].HandlerErr != "" {
		t.Fatalf("expected clean completion: %+v", rep.Activities[0])
	}

	done, _ := env.Engine.Repo.GetVineyard(env.Ctx, v.ID)
	if done.Status != domain.VineyardGrowing || done.Grape != "Sangiovese" || done.Density != 1000 {
		t.Fatalf("vineyard not planted: %+v", done)
	}
	acts, _ := env.Engine.Repo.ListActivities(env.Ctx, testGame)
	if len(acts) != 0 {
		t.Fatalf("completed activity should be removed, got %+v", acts)
	}
}

func TestStaffSearchAndHiring(t *testing.T) {
	env := newTestEnv(t)

	before, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	act, err := env.Engine.StartStaffSearch(env.Ctx, testGame, 2, 0.5)
	if err != nil {
		t.Fatalf("start search: %v", err)
	}
	after, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	fee := env.Engine.Config.Staff.SearchCostPerCandidate * 2
	if after.Cash != before.Cash-fee {
		t.Fatalf("search fee not debited: %.2f vs %.2f", after.Cash, before.Cash-fee)
	}

	// owner works the search personally via a temp staffer
	s := addStaff(t, env, act.TotalWork, 0, 0, 0)
	assign(t, env, act.ID, s.ID)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}

	candidates, err := env.Engine.Repo.ListCandidates(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	hire, err := env.Engine.StartHiring(env.Ctx, testGame, candidates[0].ID)
	if err != nil {
		t.Fatalf("start hiring: %v", err)
	}
	if hire.Cancellable {
		t.Fatalf("hiring paperwork must not be cancellable")
	}
	assign(t, env, hire.ID, s.ID)
	// hiring needs more than one week of the temp's capacity
	for i := 0; i < 4; i++ {
		if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		staff, _ := env.Engine.Repo.ListStaff(env.Ctx, testGame)
		if len(staff) == 2 {
			hired, err := env.Engine.Repo.GetStaff(env.Ctx, candidates[0].ID)
			if err != nil {
				t.Fatalf("hired staff missing: %v", err)
			}
			if hired.Name != candidates[0].Name {
				t.Fatalf("hired wrong person: %+v", hired)
			}
			if remaining, _ := env.Engine.Repo.ListCandidates(env.Ctx, testGame); len(remaining) != 1 {
				t.Fatalf("hired candidate should leave the pool, got %d", len(remaining))
			}
			return
		}
	}
	t.Fatalf("hiring never completed")
}

func TestLoanSearchTakeAndRepay(t *testing.T) {
	env := newTestEnv(t)

	act, err := env.Engine.StartLenderSearch(env.Ctx, testGame, 10000)
	if err != nil {
		t.Fatalf("start lender search: %v", err)
	}
	s := addStaff(t, env, act.TotalWork, 0, 0, 0)
	assign(t, env, act.ID, s.ID)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}

	offers, err := env.Engine.Repo.ListLoanOffers(env.Ctx, testGame)
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(offers) != env.Engine.Config.Finance.LoanOffersPerSearch {
		t.Fatalf("expected %d offers, got %d", env.Engine.Config.Finance.LoanOffersPerSearch, len(offers))
	}

	before, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	offer := offers[0]
	loan, err := env.Engine.TakeLoan(env.Ctx, testGame, offer.ID)
	if err != nil {
		t.Fatalf("take loan: %v", err)
	}
	total := offer.Principal * (1 + offer.WeeklyRate*float64(offer.TermWeeks))
	if loan.Outstanding != total {
		t.Fatalf("expected outstanding %.2f, got %.2f", total, loan.Outstanding)
	}
	if loan.WeeklyPayment != total/float64(offer.TermWeeks) {
		t.Fatalf("unexpected weekly payment %.2f", loan.WeeklyPayment)
	}
	after, _ := env.Engine.Repo.GetGame(env.Ctx, testGame)
	if after.Cash != before.Cash+offer.Principal {
		t.Fatalf("principal not credited: %.2f vs %.2f", after.Cash, before.Cash+offer.Principal)
	}
	if remaining, _ := env.Engine.Repo.ListLoanOffers(env.Ctx, testGame); len(remaining) != len(offers)-1 {
		t.Fatalf("taken offer should be consumed")
	}

	// the weekly systems pay the loan down
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}
	loans, _ := env.Engine.Repo.ListLoans(env.Ctx, testGame)
	if len(loans) != 1 || loans[0].Outstanding >= total {
		t.Fatalf("loan not paid down: %+v", loans)
	}
}
