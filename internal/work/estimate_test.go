package work_test

import (
	"math"
	"testing"

	"vintner/internal/config"
	"vintner/internal/domain"
	"vintner/internal/work"
)

func testRates(t *testing.T) work.Rates {
	t.Helper()
	return work.RatesFrom(config.Default("estate"))
}

func TestPlantingEstimate(t *testing.T) {
	r := testRates(t)

	// neutral: reference altitude, no fragility
	est := work.Planting(r, work.PlantingInputs{Acres: 3, Density: 1000, Altitude: 250})
	if est.Category != domain.CategoryPlanting {
		t.Fatalf("category: %s", est.Category)
	}
	if est.BaseWork != 60 || est.TotalWork != 60 {
		t.Fatalf("expected 60 base and total, got %.2f/%.2f", est.BaseWork, est.TotalWork)
	}

	// fragility and altitude deviation multiply on top of the base
	est = work.Planting(r, work.PlantingInputs{Acres: 3, Density: 1000, Fragility: 0.5, Altitude: 750})
	want := 60.0 * 1.5 * 1.5
	if math.Abs(est.TotalWork-want) > 1e-9 {
		t.Fatalf("expected %.2f, got %.2f", want, est.TotalWork)
	}
	if len(est.Factors) != 2 {
		t.Fatalf("expected 2 factors, got %+v", est.Factors)
	}

	// altitude below the reference costs the same as above it
	below := work.Planting(r, work.PlantingInputs{Acres: 3, Density: 1000, Altitude: 150})
	above := work.Planting(r, work.PlantingInputs{Acres: 3, Density: 1000, Altitude: 350})
	if below.TotalWork != above.TotalWork {
		t.Fatalf("altitude deviation should be symmetric: %.2f vs %.2f", below.TotalWork, above.TotalWork)
	}
}

func TestHarvestEstimateScalesWithYield(t *testing.T) {
	r := testRates(t)
	small := work.Harvest(r, work.HarvestInputs{ExpectedYieldKg: 500})
	large := work.Harvest(r, work.HarvestInputs{ExpectedYieldKg: 1000})
	if math.Abs(large.TotalWork-2*small.TotalWork) > 1e-9 {
		t.Fatalf("harvest work should be linear in yield: %.2f vs %.2f", small.TotalWork, large.TotalWork)
	}
	fragile := work.Harvest(r, work.HarvestInputs{ExpectedYieldKg: 1000, Fragility: 1})
	if math.Abs(fragile.TotalWork-large.TotalWork*1.5) > 1e-9 {
		t.Fatalf("full fragility should cost half again as much: %.2f", fragile.TotalWork)
	}
}

func TestUprootingDensityFactor(t *testing.T) {
	r := testRates(t)
	sparse := work.Uprooting(r, work.UprootingInputs{Acres: 2, Density: 0})
	dense := work.Uprooting(r, work.UprootingInputs{Acres: 2, Density: 2000})
	if math.Abs(dense.TotalWork-2*sparse.TotalWork) > 1e-9 {
		t.Fatalf("2000 vines/acre should double the work: %.2f vs %.2f", sparse.TotalWork, dense.TotalWork)
	}
}

func TestStaffSearchSkillIsSuperlinear(t *testing.T) {
	r := testRates(t)
	anyone := work.StaffSearch(r, work.StaffSearchInputs{Candidates: 3})
	skilled := work.StaffSearch(r, work.StaffSearchInputs{Candidates: 3, SkillLevel: 1})
	wantMult := math.Pow(2, 1.8)
	if math.Abs(skilled.TotalWork-anyone.TotalWork*wantMult) > 1e-9 {
		t.Fatalf("expected x%.3f for max skill, got %.2f vs %.2f", wantMult, anyone.TotalWork, skilled.TotalWork)
	}
}

func TestLenderSearchPrincipalFactor(t *testing.T) {
	r := testRates(t)
	est := work.LenderSearch(r, work.LenderSearchInputs{Offers: 3, Amount: 100000})
	if math.Abs(est.TotalWork-est.BaseWork*2) > 1e-9 {
		t.Fatalf("a 100k principal should double the search: %+v", est)
	}
}

func TestBookkeepingHasAFloor(t *testing.T) {
	r := testRates(t)
	empty := work.Bookkeeping(r, work.BookkeepingInputs{TransactionCount: 0})
	one := work.Bookkeeping(r, work.BookkeepingInputs{TransactionCount: 1})
	if empty.TotalWork != one.TotalWork {
		t.Fatalf("empty ledger should cost one entry's worth: %.2f vs %.2f", empty.TotalWork, one.TotalWork)
	}
	many := work.Bookkeeping(r, work.BookkeepingInputs{TransactionCount: 10})
	if many.TotalWork != 10*one.TotalWork {
		t.Fatalf("expected linear above the floor, got %.2f", many.TotalWork)
	}
}

func TestValidateRejectsDegenerateEstimates(t *testing.T) {
	r := testRates(t)
	if err := work.Validate(work.Clearing(r, work.ClearingInputs{Acres: 0})); err == nil {
		t.Fatalf("zero-acre clearing should be rejected")
	}
	if err := work.Validate(work.Estimate{Category: domain.CategoryPlanting, TotalWork: -1}); err == nil {
		t.Fatalf("negative work should be rejected")
	}
	if err := work.Validate(work.Clearing(r, work.ClearingInputs{Acres: 1})); err != nil {
		t.Fatalf("valid estimate rejected: %v", err)
	}
}
