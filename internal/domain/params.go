package domain

import (
	"encoding/json"
	"fmt"
)

// Per-category activity parameters. Each category stores a small typed
// struct serialized into the activity's params_json column; handlers
// round-trip it through DecodeParams/EncodeParams instead of an
// untyped key/value bag.

type PlantingParams struct {
	Grape     string  `json:"grape"`
	Density   int     `json:"density"`
	Fragility float64 `json:"fragility"`
}

type HarvestParams struct {
	ExpectedYieldKg float64 `json:"expected_yield_kg"`
	HarvestedKg     float64 `json:"harvested_kg"` // running total, updated on progress
	BatchID         string  `json:"batch_id,omitempty"`
}

type ClearingParams struct{}

type UprootingParams struct{}

type CrushingParams struct {
	BatchID string `json:"batch_id"`
}

type FermentationParams struct {
	BatchID string `json:"batch_id"`
}

type StaffSearchParams struct {
	Candidates int     `json:"candidates"`
	SkillLevel float64 `json:"skill_level"`
}

type AdministrationParams struct {
	CandidateID string `json:"candidate_id"`
}

type LenderSearchParams struct {
	Offers int     `json:"offers"`
	Amount float64 `json:"amount"`
}

type BookkeepingParams struct {
	Transactions int `json:"transactions"`
}

// EncodeParams serializes a typed params struct for storage.
func EncodeParams(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode activity params: %w", err)
	}
	return string(b), nil
}

// DecodeParams deserializes the stored params into the category's
// typed struct. A missing document decodes to the zero value.
func DecodeParams[T any](js string) (T, error) {
	var v T
	if js == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(js), &v); err != nil {
		return v, fmt.Errorf("decode activity params: %w", err)
	}
	return v, nil
}
