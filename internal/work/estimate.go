// Package work holds the pure per-category work estimators. They are
// deterministic and side-effect free so the CLI and API can render
// previews without touching the activity registry.
package work

import (
	"fmt"
	"math"

	"vintner/internal/config"
	"vintner/internal/domain"
)

// Rates are base work units per natural unit of each category.
type Rates map[domain.ActivityCategory]float64

// RatesFrom extracts estimator rates from a game config.
func RatesFrom(cfg *config.Config) Rates {
	r := make(Rates, len(cfg.Work.BaseRates))
	for name, v := range cfg.Work.BaseRates {
		r[domain.ActivityCategory(name)] = v
	}
	return r
}

// Factor is a labeled contribution shown in previews. Multiplier 1.0
// is neutral; the engine never reads factors, only TotalWork.
type Factor struct {
	Label      string  `json:"label"`
	Multiplier float64 `json:"multiplier"`
}

// Estimate is the result of a work estimator.
type Estimate struct {
	Category  domain.ActivityCategory `json:"category"`
	BaseWork  float64                 `json:"base_work"`
	TotalWork float64                 `json:"total_work"`
	Factors   []Factor                `json:"factors,omitempty"`
}

func compose(cat domain.ActivityCategory, base float64, factors ...Factor) Estimate {
	total := base
	kept := make([]Factor, 0, len(factors))
	for _, f := range factors {
		total *= f.Multiplier
		kept = append(kept, f)
	}
	return Estimate{Category: cat, BaseWork: base, TotalWork: total, Factors: kept}
}

// reference altitude in meters; vineyards far from it cost extra work.
const referenceAltitude = 250.0

type PlantingInputs struct {
	Acres     float64
	Density   int     // vines per acre
	Fragility float64 // 0..1, grape fragility
	Altitude  float64 // meters
}

// Planting scales with area and vine density, then fragility and
// altitude deviation multiply on top.
func Planting(r Rates, in PlantingInputs) Estimate {
	base := in.Acres * r[domain.CategoryPlanting] * float64(in.Density) / 1000.0
	return compose(domain.CategoryPlanting, base,
		Factor{Label: "Fragility", Multiplier: 1 + in.Fragility},
		Factor{Label: "Altitude deviation", Multiplier: 1 + math.Abs(in.Altitude-referenceAltitude)/1000.0},
	)
}

type HarvestInputs struct {
	ExpectedYieldKg float64
	Fragility       float64
}

func Harvest(r Rates, in HarvestInputs) Estimate {
	base := in.ExpectedYieldKg * r[domain.CategoryHarvesting]
	return compose(domain.CategoryHarvesting, base,
		Factor{Label: "Fragility", Multiplier: 1 + in.Fragility/2},
	)
}

type ClearingInputs struct {
	Acres float64
}

func Clearing(r Rates, in ClearingInputs) Estimate {
	return compose(domain.CategoryClearing, in.Acres*r[domain.CategoryClearing])
}

type UprootingInputs struct {
	Acres   float64
	Density int
}

// Uprooting costs more on densely planted plots.
func Uprooting(r Rates, in UprootingInputs) Estimate {
	base := in.Acres * r[domain.CategoryUprooting]
	return compose(domain.CategoryUprooting, base,
		Factor{Label: "Vine density", Multiplier: 1 + float64(in.Density)/2000.0},
	)
}

type CrushingInputs struct {
	QuantityKg float64
}

func Crushing(r Rates, in CrushingInputs) Estimate {
	return compose(domain.CategoryCrushing, in.QuantityKg*r[domain.CategoryCrushing])
}

type FermentationInputs struct {
	Liters float64
}

func Fermentation(r Rates, in FermentationInputs) Estimate {
	return compose(domain.CategoryFermentation, in.Liters*r[domain.CategoryFermentation])
}

type StaffSearchInputs struct {
	Candidates int
	SkillLevel float64 // 0..1 minimum skill asked for
}

// StaffSearch grows superlinearly with the skill bar: screening good
// people is much harder than screening anyone.
func StaffSearch(r Rates, in StaffSearchInputs) Estimate {
	base := float64(in.Candidates) * r[domain.CategoryStaffSearch]
	return compose(domain.CategoryStaffSearch, base,
		Factor{Label: "Skill requirement", Multiplier: math.Pow(1+in.SkillLevel, 1.8)},
	)
}

type AdministrationInputs struct {
	CandidateSkill float64 // combined 0..3 across the three skills
}

func Administration(r Rates, in AdministrationInputs) Estimate {
	return compose(domain.CategoryAdministration, r[domain.CategoryAdministration],
		Factor{Label: "Candidate skill", Multiplier: 1 + in.CandidateSkill/3},
	)
}

type LenderSearchInputs struct {
	Offers int
	Amount float64 // desired principal
}

func LenderSearch(r Rates, in LenderSearchInputs) Estimate {
	base := float64(in.Offers) * r[domain.CategoryLenderSearch]
	return compose(domain.CategoryLenderSearch, base,
		Factor{Label: "Principal size", Multiplier: 1 + in.Amount/100000.0},
	)
}

type BookkeepingInputs struct {
	TransactionCount int
}

func Bookkeeping(r Rates, in BookkeepingInputs) Estimate {
	base := float64(in.TransactionCount) * r[domain.CategoryBookkeeping]
	if base < r[domain.CategoryBookkeeping] {
		// even an empty ledger takes one entry's worth of checking
		base = r[domain.CategoryBookkeeping]
	}
	return compose(domain.CategoryBookkeeping, base)
}

// Validate rejects degenerate estimates before they reach the engine.
func Validate(e Estimate) error {
	if e.TotalWork <= 0 {
		return fmt.Errorf("estimated work for %s is %.2f; nothing to do", e.Category, e.TotalWork)
	}
	return nil
}
