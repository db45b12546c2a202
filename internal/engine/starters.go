package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vintner/internal/domain"
	"vintner/internal/events"
	"vintner/internal/work"
)

// Domain entrypoints. Each Start* builds a typed params struct and a
// work estimate, then hands both to the registry. The matching
// Preview* returns the estimate without creating anything, for the
// CLI and API to render a breakdown first.

func (e Engine) rates() work.Rates { return work.RatesFrom(e.Config) }

func (e Engine) start(ctx context.Context, gameID string, est work.Estimate, target string, params any, cancellable bool) (domain.Activity, error) {
	if err := work.Validate(est); err != nil {
		return domain.Activity{}, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	return e.CreateActivity(ctx, CreateActivityOptions{
		GameID:      gameID,
		Category:    est.Category,
		TargetID:    target,
		TotalWork:   est.TotalWork,
		Params:      params,
		Cancellable: cancellable,
	})
}

// --- planting ---

func (e Engine) planPlanting(ctx context.Context, vineyardID, grape string, density int, fragility float64) (domain.Vineyard, work.Estimate, error) {
	v, err := e.Repo.GetVineyard(ctx, vineyardID)
	if err != nil {
		return v, work.Estimate{}, err
	}
	if v.Status != domain.VineyardBarren {
		return v, work.Estimate{}, fmt.Errorf("%w: vineyard %s is %s, must be %s", ErrInvalidActivity, v.Name, v.Status, domain.VineyardBarren)
	}
	if grape == "" || density <= 0 {
		return v, work.Estimate{}, fmt.Errorf("%w: grape and density are required", ErrInvalidActivity)
	}
	est := work.Planting(e.rates(), work.PlantingInputs{
		Acres: v.Acres, Density: density, Fragility: fragility, Altitude: v.Altitude,
	})
	return v, est, nil
}

func (e Engine) PreviewPlanting(ctx context.Context, vineyardID, grape string, density int, fragility float64) (work.Estimate, error) {
	_, est, err := e.planPlanting(ctx, vineyardID, grape, density, fragility)
	return est, err
}

func (e Engine) StartPlanting(ctx context.Context, gameID, vineyardID, grape string, density int, fragility float64) (domain.Activity, error) {
	v, est, err := e.planPlanting(ctx, vineyardID, grape, density, fragility)
	if err != nil {
		return domain.Activity{}, err
	}
	return e.start(ctx, gameID, est, v.ID, domain.PlantingParams{Grape: grape, Density: density, Fragility: fragility}, true)
}

// --- harvesting ---

func (e Engine) planHarvest(ctx context.Context, vineyardID string, fragility float64) (domain.Vineyard, work.Estimate, float64, error) {
	v, err := e.Repo.GetVineyard(ctx, vineyardID)
	if err != nil {
		return v, work.Estimate{}, 0, err
	}
	if v.Status != domain.VineyardGrowing {
		return v, work.Estimate{}, 0, fmt.Errorf("%w: vineyard %s is %s, nothing to harvest", ErrInvalidActivity, v.Name, v.Status)
	}
	expected := v.Acres * float64(v.Density) * e.Config.Vineyard.YieldKgPerVine * v.Ripeness
	est := work.Harvest(e.rates(), work.HarvestInputs{ExpectedYieldKg: expected, Fragility: fragility})
	return v, est, expected, nil
}

func (e Engine) PreviewHarvest(ctx context.Context, vineyardID string, fragility float64) (work.Estimate, error) {
	_, est, _, err := e.planHarvest(ctx, vineyardID, fragility)
	return est, err
}

func (e Engine) StartHarvest(ctx context.Context, gameID, vineyardID string, fragility float64) (domain.Activity, error) {
	v, est, expected, err := e.planHarvest(ctx, vineyardID, fragility)
	if err != nil {
		return domain.Activity{}, err
	}
	return e.start(ctx, gameID, est, v.ID, domain.HarvestParams{ExpectedYieldKg: expected}, true)
}

// --- clearing ---

func (e Engine) PreviewClearing(ctx context.Context, vineyardID string) (work.Estimate, error) {
	v, err := e.Repo.GetVineyard(ctx, vineyardID)
	if err != nil {
		return work.Estimate{}, err
	}
	return work.Clearing(e.rates(), work.ClearingInputs{Acres: v.Acres}), nil
}

func (e Engine) StartClearing(ctx context.Context, gameID, vineyardID string) (domain.Activity, error) {
	est, err := e.PreviewClearing(ctx, vineyardID)
	if err != nil {
		return domain.Activity{}, err
	}
	return e.start(ctx, gameID, est, vineyardID, domain.ClearingParams{}, true)
}

// --- uprooting ---

func (e Engine) planUprooting(ctx context.Context, vineyardID string) (domain.Vineyard, work.Estimate, error) {
	v, err := e.Repo.GetVineyard(ctx, vineyardID)
	if err != nil {
		return v, work.Estimate{}, err
	}
	if v.Density == 0 {
		return v, work.Estimate{}, fmt.Errorf("%w: vineyard %s has no vines to uproot", ErrInvalidActivity, v.Name)
	}
	return v, work.Uprooting(e.rates(), work.UprootingInputs{Acres: v.Acres, Density: v.Density}), nil
}

func (e Engine) PreviewUprooting(ctx context.Context, vineyardID string) (work.Estimate, error) {
	_, est, err := e.planUprooting(ctx, vineyardID)
	return est, err
}

func (e Engine) StartUprooting(ctx context.Context, gameID, vineyardID string) (domain.Activity, error) {
	v, est, err := e.planUprooting(ctx, vineyardID)
	if err != nil {
		return domain.Activity{}, err
	}
	return e.start(ctx, gameID, est, v.ID, domain.UprootingParams{}, true)
}

// --- crushing ---

func (e Engine) planCrushing(ctx context.Context, batchID string) (domain.WineBatch, work.Estimate, error) {
	b, err := e.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return b, work.Estimate{}, err
	}
	if b.Stage != domain.StageGrapes {
		return b, work.Estimate{}, fmt.Errorf("%w: batch %s is %s, only grapes can be crushed", ErrInvalidActivity, batchID, b.Stage)
	}
	return b, work.Crushing(e.rates(), work.CrushingInputs{QuantityKg: b.QuantityKg}), nil
}

func (e Engine) PreviewCrushing(ctx context.Context, batchID string) (work.Estimate, error) {
	_, est, err := e.planCrushing(ctx, batchID)
	return est, err
}

func (e Engine) StartCrushing(ctx context.Context, gameID, batchID string) (domain.Activity, error) {
	b, est, err := e.planCrushing(ctx, batchID)
	if err != nil {
		return domain.Activity{}, err
	}
	return e.start(ctx, gameID, est, b.ID, domain.CrushingParams{BatchID: b.ID}, true)
}

// --- fermentation ---

func (e Engine) planFermentation(ctx context.Context, batchID string) (domain.WineBatch, work.Estimate, error) {
	b, err := e.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return b, work.Estimate{}, err
	}
	if b.Stage != domain.StageMust {
		return b, work.Estimate{}, fmt.Errorf("%w: batch %s is %s, only must can ferment", ErrInvalidActivity, batchID, b.Stage)
	}
	return b, work.Fermentation(e.rates(), work.FermentationInputs{Liters: b.Liters}), nil
}

func (e Engine) PreviewFermentation(ctx context.Context, batchID string) (work.Estimate, error) {
	_, est, err := e.planFermentation(ctx, batchID)
	return est, err
}

// StartFermentation is not cancellable: an abandoned ferment is a
// spoiled batch, so once started it runs to completion.
func (e Engine) StartFermentation(ctx context.Context, gameID, batchID string) (domain.Activity, error) {
	b, est, err := e.planFermentation(ctx, batchID)
	if err != nil {
		return domain.Activity{}, err
	}
	return e.start(ctx, gameID, est, b.ID, domain.FermentationParams{BatchID: b.ID}, false)
}

// --- staff search ---

func (e Engine) PreviewStaffSearch(candidates int, skillLevel float64) work.Estimate {
	return work.StaffSearch(e.rates(), work.StaffSearchInputs{Candidates: candidates, SkillLevel: skillLevel})
}

// StartStaffSearch debits the recruiter fee up front; cancelling the
// search later does not refund it.
func (e Engine) StartStaffSearch(ctx context.Context, gameID string, candidates int, skillLevel float64) (domain.Activity, error) {
	if candidates <= 0 {
		return domain.Activity{}, fmt.Errorf("%w: candidates must be > 0", ErrInvalidActivity)
	}
	if skillLevel < 0 || skillLevel > 1 {
		return domain.Activity{}, fmt.Errorf("%w: skill level must be in [0,1]", ErrInvalidActivity)
	}
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return domain.Activity{}, err
	}
	fee := e.Config.Staff.SearchCostPerCandidate * float64(candidates)
	if g.Cash < fee {
		return domain.Activity{}, fmt.Errorf("insufficient cash for recruiter fee: need %.2f, have %.2f", fee, g.Cash)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.Repo.AdjustCashTx(ctx, tx, gameID, g.Week, -fee, "recruiter fee", now)
	}); err != nil {
		return domain.Activity{}, err
	}
	est := e.PreviewStaffSearch(candidates, skillLevel)
	return e.start(ctx, gameID, est, "", domain.StaffSearchParams{Candidates: candidates, SkillLevel: skillLevel}, true)
}

// --- administration (hiring) ---

func (e Engine) planHiring(ctx context.Context, candidateID string) (domain.Candidate, work.Estimate, error) {
	c, err := e.Repo.GetCandidate(ctx, candidateID)
	if err != nil {
		return c, work.Estimate{}, err
	}
	combined := c.SkillField + c.SkillCellar + c.SkillAdmin
	return c, work.Administration(e.rates(), work.AdministrationInputs{CandidateSkill: combined}), nil
}

func (e Engine) PreviewHiring(ctx context.Context, candidateID string) (work.Estimate, error) {
	_, est, err := e.planHiring(ctx, candidateID)
	return est, err
}

// StartHiring runs the hiring paperwork. Not cancellable: the offer
// letter is out.
func (e Engine) StartHiring(ctx context.Context, gameID, candidateID string) (domain.Activity, error) {
	c, est, err := e.planHiring(ctx, candidateID)
	if err != nil {
		return domain.Activity{}, err
	}
	if c.GameID != gameID {
		return domain.Activity{}, fmt.Errorf("candidate %s not in game %s", candidateID, gameID)
	}
	return e.start(ctx, gameID, est, c.ID, domain.AdministrationParams{CandidateID: c.ID}, false)
}

// --- lender search ---

func (e Engine) PreviewLenderSearch(amount float64) work.Estimate {
	return work.LenderSearch(e.rates(), work.LenderSearchInputs{
		Offers: e.Config.Finance.LoanOffersPerSearch,
		Amount: amount,
	})
}

func (e Engine) StartLenderSearch(ctx context.Context, gameID string, amount float64) (domain.Activity, error) {
	if amount <= 0 {
		return domain.Activity{}, fmt.Errorf("%w: loan amount must be > 0", ErrInvalidActivity)
	}
	est := e.PreviewLenderSearch(amount)
	return e.start(ctx, gameID, est, "", domain.LenderSearchParams{
		Offers: e.Config.Finance.LoanOffersPerSearch,
		Amount: amount,
	}, true)
}

// --- bookkeeping ---

func (e Engine) PreviewBookkeeping(ctx context.Context, gameID string) (work.Estimate, error) {
	n, err := e.Repo.CountTransactions(ctx, gameID)
	if err != nil {
		return work.Estimate{}, err
	}
	return work.Bookkeeping(e.rates(), work.BookkeepingInputs{TransactionCount: n}), nil
}

// StartBookkeeping sizes the workload from the current ledger.
func (e Engine) StartBookkeeping(ctx context.Context, gameID string) (domain.Activity, error) {
	n, err := e.Repo.CountTransactions(ctx, gameID)
	if err != nil {
		return domain.Activity{}, err
	}
	est := work.Bookkeeping(e.rates(), work.BookkeepingInputs{TransactionCount: n})
	return e.start(ctx, gameID, est, "", domain.BookkeepingParams{Transactions: n}, true)
}

// TakeLoan accepts one offer from a completed lender search: cash in
// now, a weekly payment at every tick until the balance is gone. The
// other offers from the same search remain until taken or ignored.
func (e Engine) TakeLoan(ctx context.Context, gameID, offerID string) (domain.Loan, error) {
	o, err := e.Repo.GetLoanOffer(ctx, offerID)
	if err != nil {
		return domain.Loan{}, err
	}
	if o.GameID != gameID {
		return domain.Loan{}, fmt.Errorf("offer %s not in game %s", offerID, gameID)
	}
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return domain.Loan{}, err
	}
	total := o.Principal * (1 + o.WeeklyRate*float64(o.TermWeeks))
	now := e.now().UTC().Format(time.RFC3339)
	l := domain.Loan{
		ID:            uuid.New().String(),
		GameID:        gameID,
		Lender:        o.Lender,
		Outstanding:   total,
		WeeklyPayment: total / float64(o.TermWeeks),
		CreatedAt:     now,
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertLoanTx(ctx, tx, l); err != nil {
			return err
		}
		if err := e.Repo.DeleteLoanOfferTx(ctx, tx, o.ID); err != nil {
			return err
		}
		if err := e.Repo.AdjustCashTx(ctx, tx, gameID, g.Week, o.Principal, "loan from "+o.Lender, now); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "loan.taken", gameID, "loan", l.ID, events.EventPayload{
			"lender":    o.Lender,
			"principal": o.Principal,
		})
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return l, nil
}
