package engine_test

import (
	"errors"
	"testing"

	"vintner/internal/domain"
	"vintner/internal/engine"
	"vintner/internal/repo"
)

func TestCreateActivityValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		opts engine.CreateActivityOptions
	}{
		{"zero total work", engine.CreateActivityOptions{
			GameID: testGame, Category: domain.CategoryClearing, TotalWork: 0,
		}},
		{"negative total work", engine.CreateActivityOptions{
			GameID: testGame, Category: domain.CategoryClearing, TotalWork: -5,
		}},
		{"unknown category", engine.CreateActivityOptions{
			GameID: testGame, Category: "weeding", TotalWork: 10,
		}},
		{"missing game", engine.CreateActivityOptions{
			Category: domain.CategoryClearing, TotalWork: 10,
		}},
	}
	for _, tc := range cases {
		_, err := env.Engine.CreateActivity(env.Ctx, tc.opts)
		if !errors.Is(err, engine.ErrInvalidActivity) {
			t.Fatalf("%s: expected ErrInvalidActivity, got %v", tc.name, err)
		}
	}

	// unknown game id is a lookup failure, not a validation one
	_, err := env.Engine.CreateActivity(env.Ctx, engine.CreateActivityOptions{
		GameID: "ghost", Category: domain.CategoryClearing, TotalWork: 10,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown game, got %v", err)
	}
}

func TestOneActivityPerTarget(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Contested", 2, 250)

	if _, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID); err != nil {
		t.Fatalf("first clearing: %v", err)
	}
	_, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID)
	if !errors.Is(err, engine.ErrInvalidActivity) {
		t.Fatalf("expected second activity on the same plot to be rejected, got %v", err)
	}
}

func TestCancelActivity(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Changeable", 2, 250)

	act, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID)
	if err != nil {
		t.Fatalf("start clearing: %v", err)
	}
	if err := env.Engine.CancelActivity(env.Ctx, act.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, act.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cancelled activity should be gone, got %v", err)
	}

	// cancellation never fires the completion handler
	plot, _ := env.Engine.Repo.GetVineyard(env.Ctx, v.ID)
	if plot.Status != domain.VineyardBarren {
		t.Fatalf("cancel must not run completion, status %q", plot.Status)
	}
	cleared, _ := env.Engine.Repo.LatestEvents(env.Ctx, 10, testGame, "vineyard.cleared", "", "")
	if len(cleared) != 0 {
		t.Fatalf("no completion events expected, got %d", len(cleared))
	}

	// cancel is not idempotent: the second call reports not found
	if err := env.Engine.CancelActivity(env.Ctx, act.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double cancel, got %v", err)
	}
}

func TestCancelRefusedForProtectedCategories(t *testing.T) {
	env := newTestEnv(t)

	act, err := env.Engine.CreateActivity(env.Ctx, engine.CreateActivityOptions{
		GameID:      testGame,
		Category:    domain.CategoryFermentation,
		TotalWork:   10,
		Params:      domain.FermentationParams{BatchID: "batch-x"},
		Cancellable: false,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.Engine.CancelActivity(env.Ctx, act.ID); !errors.Is(err, engine.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, act.ID); err != nil {
		t.Fatalf("refused cancel must leave the activity in place: %v", err)
	}
}

func TestRetotalOnlyBeforeWorkStarts(t *testing.T) {
	env := newTestEnv(t)
	v := buyVineyard(t, env, "Resized", 2, 250)

	act, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID)
	if err != nil {
		t.Fatalf("start clearing: %v", err)
	}

	updated, err := env.Engine.RetotalActivity(env.Ctx, act.ID, 99)
	if err != nil {
		t.Fatalf("retotal before work: %v", err)
	}
	if updated.TotalWork != 99 {
		t.Fatalf("expected total 99, got %.2f", updated.TotalWork)
	}

	if _, err := env.Engine.RetotalActivity(env.Ctx, act.ID, 0); !errors.Is(err, engine.ErrInvalidActivity) {
		t.Fatalf("expected rejection of non-positive total, got %v", err)
	}

	s := addStaff(t, env, 10, 0, 0, 0)
	assign(t, env, act.ID, s.ID)
	if _, err := env.Engine.AdvanceWeek(env.Ctx, testGame); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, err := env.Engine.RetotalActivity(env.Ctx, act.ID, 120); !errors.Is(err, engine.ErrInvalidActivity) {
		t.Fatalf("retotal after work started must fail, got %v", err)
	}
}

func TestAssignStaffCrossGameRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.NewGame(env.Ctx, "rival", "Rival Estate"); err != nil {
		t.Fatalf("second game: %v", err)
	}
	v := buyVineyard(t, env, "Home Plot", 1, 250)
	act, err := env.Engine.StartClearing(env.Ctx, testGame, v.ID)
	if err != nil {
		t.Fatalf("start clearing: %v", err)
	}

	s := addStaff(t, env, 50, 0, 0, 0)
	rivalStaff := s
	rivalStaff.ID = "rival-staff"
	rivalStaff.GameID = "rival"
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := env.Engine.Repo.InsertStaffTx(env.Ctx, tx, rivalStaff); err != nil {
		t.Fatalf("insert rival staff: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := env.Engine.AssignStaff(env.Ctx, act.ID, rivalStaff.ID); err == nil {
		t.Fatalf("expected cross-game assignment to fail")
	}
	if err := env.Engine.AssignStaff(env.Ctx, act.ID, s.ID); err != nil {
		t.Fatalf("same-game assignment: %v", err)
	}
}
