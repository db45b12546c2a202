package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vintner/internal/domain"
	"vintner/internal/events"
)

// OutcomeHandler reacts to an activity's progress and completion. One
// handler exists per category; handlers run outside the registry
// transaction so a failed outcome never rolls back applied work.
type OutcomeHandler interface {
	Progress(ctx context.Context, act domain.Activity, fraction float64) error
	Complete(ctx context.Context, act domain.Activity) error
}

func (e Engine) handlerFor(category domain.ActivityCategory) OutcomeHandler {
	switch category {
	case domain.CategoryPlanting:
		return plantingHandler{e}
	case domain.CategoryHarvesting:
		return harvestHandler{e}
	case domain.CategoryClearing:
		return clearingHandler{e}
	case domain.CategoryUprooting:
		return uprootingHandler{e}
	case domain.CategoryCrushing:
		return crushingHandler{e: e}
	case domain.CategoryFermentation:
		return fermentationHandler{e: e}
	case domain.CategoryStaffSearch:
		return staffSearchHandler{e: e}
	case domain.CategoryAdministration:
		return administrationHandler{e: e}
	case domain.CategoryLenderSearch:
		return lenderSearchHandler{e: e}
	case domain.CategoryBookkeeping:
		return bookkeepingHandler{e: e}
	}
	return noopHandler{}
}

func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func targetID(act domain.Activity) (string, error) {
	if act.TargetID == nil || *act.TargetID == "" {
		return "", fmt.Errorf("activity %s has no target", act.ID)
	}
	return *act.TargetID, nil
}

// completionOnly is embedded by handlers whose category has no
// intermediate effects.
type completionOnly struct{}

func (completionOnly) Progress(context.Context, domain.Activity, float64) error { return nil }

type noopHandler struct{ completionOnly }

func (noopHandler) Complete(context.Context, domain.Activity) error { return nil }

// --- planting ---

type plantingHandler struct{ e Engine }

func (h plantingHandler) Progress(ctx context.Context, act domain.Activity, fraction float64) error {
	id, err := targetID(act)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		v, err := h.e.Repo.GetVineyardTx(ctx, tx, id)
		if err != nil {
			return err
		}
		v.Status = fmt.Sprintf("Planting: %d%%", int(fraction*100))
		v.UpdatedAt = h.e.now().UTC().Format(time.RFC3339)
		return h.e.Repo.UpdateVineyardTx(ctx, tx, v)
	})
}

func (h plantingHandler) Complete(ctx context.Context, act domain.Activity) error {
	id, err := targetID(act)
	if err != nil {
		return err
	}
	params, err := domain.DecodeParams[domain.PlantingParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		v, err := h.e.Repo.GetVineyardTx(ctx, tx, id)
		if err != nil {
			return err
		}
		v.Grape = params.Grape
		v.Density = params.Density
		v.Status = domain.VineyardGrowing
		v.Ripeness = 0
		v.VineAge = 0
		v.UpdatedAt = h.e.now().UTC().Format(time.RFC3339)
		if err := h.e.Repo.UpdateVineyardTx(ctx, tx, v); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "vineyard.planted", act.GameID, "vineyard", v.ID, events.EventPayload{
			"grape":   params.Grape,
			"density": params.Density,
		})
	})
}

// --- harvesting ---

type harvestHandler struct{ e Engine }

func (h harvestHandler) Progress(ctx context.Context, act domain.Activity, fraction float64) error {
	return h.bringIn(ctx, act, fraction, false)
}

func (h harvestHandler) Complete(ctx context.Context, act domain.Activity) error {
	return h.bringIn(ctx, act, 1, true)
}

// bringIn moves grapes into the batch up to fraction of the expected
// yield. Incremental: each call harvests only what previous calls
// have not, so a kilogram is never counted twice.
func (h harvestHandler) bringIn(ctx context.Context, act domain.Activity, fraction float64, final bool) error {
	vineyardID, err := targetID(act)
	if err != nil {
		return err
	}
	params, err := domain.DecodeParams[domain.HarvestParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	increment := fraction*params.ExpectedYieldKg - params.HarvestedKg
	if increment < 0 {
		increment = 0
	}
	now := h.e.now().UTC().Format(time.RFC3339)
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		v, err := h.e.Repo.GetVineyardTx(ctx, tx, vineyardID)
		if err != nil {
			return err
		}
		if params.BatchID == "" {
			params.BatchID = uuid.NewString()
			if err := h.e.Repo.InsertBatchTx(ctx, tx, domain.WineBatch{
				ID:         params.BatchID,
				GameID:     act.GameID,
				VineyardID: v.ID,
				Grape:      v.Grape,
				Stage:      domain.StageGrapes,
				CreatedAt:  now,
				UpdatedAt:  now,
			}); err != nil {
				return err
			}
		}
		b, err := h.e.Repo.GetBatchTx(ctx, tx, params.BatchID)
		if err != nil {
			return err
		}
		b.QuantityKg += increment
		b.UpdatedAt = now
		if err := h.e.Repo.UpdateBatchTx(ctx, tx, b); err != nil {
			return err
		}
		params.HarvestedKg += increment
		if final {
			v.Status = domain.VineyardHarvested
			v.Ripeness = 0
		} else {
			v.Status = fmt.Sprintf("Harvesting: %.0f/%.0f kg", params.HarvestedKg, params.ExpectedYieldKg)
			// keep HarvestedKg and BatchID for the next tick
			js, err := domain.EncodeParams(params)
			if err != nil {
				return err
			}
			act.ParamsJSON = js
			act.UpdatedAt = now
			if err := h.e.Repo.UpdateActivityTx(ctx, tx, act); err != nil {
				return err
			}
		}
		v.UpdatedAt = now
		if err := h.e.Repo.UpdateVineyardTx(ctx, tx, v); err != nil {
			return err
		}
		if final {
			return h.e.Events.Append(ctx, tx, "vineyard.harvested", act.GameID, "vineyard", v.ID, events.EventPayload{
				"batch_id":     params.BatchID,
				"harvested_kg": params.HarvestedKg,
			})
		}
		return nil
	})
}

// --- clearing ---

type clearingHandler struct{ e Engine }

func (h clearingHandler) Progress(ctx context.Context, act domain.Activity, fraction float64) error {
	return h.e.setVineyardStatus(ctx, act, fmt.Sprintf("Clearing: %d%%", int(fraction*100)))
}

func (h clearingHandler) Complete(ctx context.Context, act domain.Activity) error {
	id, err := targetID(act)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		v, err := h.e.Repo.GetVineyardTx(ctx, tx, id)
		if err != nil {
			return err
		}
		v.Status = domain.VineyardBarren
		v.UpdatedAt = h.e.now().UTC().Format(time.RFC3339)
		if err := h.e.Repo.UpdateVineyardTx(ctx, tx, v); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "vineyard.cleared", act.GameID, "vineyard", v.ID, nil)
	})
}

// --- uprooting ---

type uprootingHandler struct{ e Engine }

func (h uprootingHandler) Progress(ctx context.Context, act domain.Activity, fraction float64) error {
	return h.e.setVineyardStatus(ctx, act, fmt.Sprintf("Uprooting: %d%%", int(fraction*100)))
}

func (h uprootingHandler) Complete(ctx context.Context, act domain.Activity) error {
	id, err := targetID(act)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		v, err := h.e.Repo.GetVineyardTx(ctx, tx, id)
		if err != nil {
			return err
		}
		v.Grape = ""
		v.Density = 0
		v.Ripeness = 0
		v.VineAge = 0
		v.Status = domain.VineyardBarren
		v.UpdatedAt = h.e.now().UTC().Format(time.RFC3339)
		if err := h.e.Repo.UpdateVineyardTx(ctx, tx, v); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "vineyard.uprooted", act.GameID, "vineyard", v.ID, nil)
	})
}

func (e Engine) setVineyardStatus(ctx context.Context, act domain.Activity, status string) error {
	id, err := targetID(act)
	if err != nil {
		return err
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		v, err := e.Repo.GetVineyardTx(ctx, tx, id)
		if err != nil {
			return err
		}
		v.Status = status
		v.UpdatedAt = e.now().UTC().Format(time.RFC3339)
		return e.Repo.UpdateVineyardTx(ctx, tx, v)
	})
}

// --- crushing ---

type crushingHandler struct {
	completionOnly
	e Engine
}

func (h crushingHandler) Complete(ctx context.Context, act domain.Activity) error {
	params, err := domain.DecodeParams[domain.CrushingParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		b, err := h.e.Repo.GetBatchTx(ctx, tx, params.BatchID)
		if err != nil {
			return err
		}
		b.Stage = domain.StageMust
		b.Liters = b.QuantityKg * h.e.Config.Vineyard.LitersPerKg
		b.UpdatedAt = h.e.now().UTC().Format(time.RFC3339)
		if err := h.e.Repo.UpdateBatchTx(ctx, tx, b); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "batch.crushed", act.GameID, "batch", b.ID, events.EventPayload{
			"liters": b.Liters,
		})
	})
}

// --- fermentation ---

type fermentationHandler struct {
	completionOnly
	e Engine
}

func (h fermentationHandler) Complete(ctx context.Context, act domain.Activity) error {
	params, err := domain.DecodeParams[domain.FermentationParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		b, err := h.e.Repo.GetBatchTx(ctx, tx, params.BatchID)
		if err != nil {
			return err
		}
		b.Stage = domain.StageWine
		b.UpdatedAt = h.e.now().UTC().Format(time.RFC3339)
		if err := h.e.Repo.UpdateBatchTx(ctx, tx, b); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "batch.fermented", act.GameID, "batch", b.ID, events.EventPayload{
			"liters": b.Liters,
		})
	})
}

// --- staff search ---

type staffSearchHandler struct {
	completionOnly
	e Engine
}

func (h staffSearchHandler) Complete(ctx context.Context, act domain.Activity) error {
	params, err := domain.DecodeParams[domain.StaffSearchParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	now := h.e.now().UTC().Format(time.RFC3339)
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		ids := make([]string, 0, params.Candidates)
		for i := 0; i < params.Candidates; i++ {
			c := h.e.rollCandidate(act.GameID, i, params.SkillLevel, now)
			if err := h.e.Repo.InsertCandidateTx(ctx, tx, c); err != nil {
				return err
			}
			ids = append(ids, c.ID)
		}
		return h.e.Events.Append(ctx, tx, "staff.candidates_found", act.GameID, "activity", act.ID, events.EventPayload{
			"candidates": ids,
		})
	})
}

var candidateNames = []string{
	"Ada Moreau", "Bruno Castellan", "Carmen Oliva", "Dario Lunetti",
	"Elena Vasquez", "Franco Belmonte", "Greta Hahn", "Hugo Reinarts",
	"Iris Kowalska", "Jon Abadie", "Klara Steiner", "Luca Ferranti",
}

// rollCandidate derives candidate stats from the slot index and the
// requested skill level. Deterministic so searches are reproducible.
func (e Engine) rollCandidate(gameID string, idx int, skillLevel float64, now string) domain.Candidate {
	spread := 0.75 + 0.1*float64(idx%6)
	c := domain.Candidate{
		ID:          uuid.NewString(),
		GameID:      gameID,
		Name:        candidateNames[idx%len(candidateNames)],
		WeeklyWork:  e.Config.Staff.BaseWeeklyWork * spread,
		SkillField:  clamp01(skillLevel * (0.5 + 0.25*float64(idx%3))),
		SkillCellar: clamp01(skillLevel * (0.5 + 0.25*float64((idx+1)%3))),
		SkillAdmin:  clamp01(skillLevel * (0.5 + 0.25*float64((idx+2)%3))),
		CreatedAt:   now,
	}
	c.WeeklyWage = e.Config.Staff.BaseWeeklyWage * (0.6 + 0.8*skillLevel) * spread
	return c
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// --- administration (hiring paperwork) ---

type administrationHandler struct {
	completionOnly
	e Engine
}

func (h administrationHandler) Complete(ctx context.Context, act domain.Activity) error {
	params, err := domain.DecodeParams[domain.AdministrationParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	if params.CandidateID == "" {
		return nil
	}
	now := h.e.now().UTC().Format(time.RFC3339)
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		c, err := h.e.Repo.GetCandidateTx(ctx, tx, params.CandidateID)
		if err != nil {
			return fmt.Errorf("hire candidate: %w", err)
		}
		s := domain.Staff{
			ID:          c.ID,
			GameID:      c.GameID,
			Name:        c.Name,
			WeeklyWork:  c.WeeklyWork,
			SkillField:  c.SkillField,
			SkillCellar: c.SkillCellar,
			SkillAdmin:  c.SkillAdmin,
			WeeklyWage:  c.WeeklyWage,
			HiredAt:     now,
		}
		if err := h.e.Repo.InsertStaffTx(ctx, tx, s); err != nil {
			return err
		}
		if err := h.e.Repo.DeleteCandidateTx(ctx, tx, c.ID); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "staff.hired", act.GameID, "staff", s.ID, events.EventPayload{
			"name":        s.Name,
			"weekly_wage": s.WeeklyWage,
		})
	})
}

// --- lender search ---

type lenderSearchHandler struct {
	completionOnly
	e Engine
}

var lenderNames = []string{"Crestview Rural Bank", "Vignoble Credit Union", "Harlan & Sons Capital", "Meridian Agri Finance"}

func (h lenderSearchHandler) Complete(ctx context.Context, act domain.Activity) error {
	params, err := domain.DecodeParams[domain.LenderSearchParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	now := h.e.now().UTC().Format(time.RFC3339)
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		ids := make([]string, 0, params.Offers)
		for i := 0; i < params.Offers; i++ {
			o := domain.LoanOffer{
				ID:         uuid.NewString(),
				GameID:     act.GameID,
				Lender:     lenderNames[i%len(lenderNames)],
				Principal:  params.Amount,
				WeeklyRate: h.e.Config.Finance.BaseWeeklyRate * (0.8 + 0.2*float64(i)),
				TermWeeks:  52 + 26*i,
				CreatedAt:  now,
			}
			if err := h.e.Repo.InsertLoanOfferTx(ctx, tx, o); err != nil {
				return err
			}
			ids = append(ids, o.ID)
		}
		return h.e.Events.Append(ctx, tx, "finance.offers_found", act.GameID, "activity", act.ID, events.EventPayload{
			"offers": ids,
			"amount": params.Amount,
		})
	})
}

// --- bookkeeping ---

type bookkeepingHandler struct {
	completionOnly
	e Engine
}

func (h bookkeepingHandler) Complete(ctx context.Context, act domain.Activity) error {
	params, err := domain.DecodeParams[domain.BookkeepingParams](act.ParamsJSON)
	if err != nil {
		return err
	}
	return h.e.withTx(ctx, func(tx *sql.Tx) error {
		gain := 0.2 + 0.02*float64(params.Transactions)
		now := h.e.now().UTC().Format(time.RFC3339)
		if err := h.e.Repo.AddPrestigeTx(ctx, tx, act.GameID, gain, now); err != nil {
			return err
		}
		return h.e.Events.Append(ctx, tx, "books.balanced", act.GameID, "game", act.GameID, events.EventPayload{
			"prestige_gain": gain,
		})
	})
}
