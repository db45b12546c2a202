package server

// Request payloads. Responses reuse the domain and engine types
// directly; their JSON tags are the wire contract.

type CreateGameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type AdvanceRequest struct {
	Weeks int `json:"weeks,omitempty" minimum:"1" maximum:"52"`
}

type BuyVineyardRequest struct {
	Name     string  `json:"name"`
	Acres    float64 `json:"acres" minimum:"0"`
	Altitude float64 `json:"altitude,omitempty"`
	Price    float64 `json:"price,omitempty" minimum:"0"`
}

type PlantRequest struct {
	Grape     string  `json:"grape"`
	Density   int     `json:"density" minimum:"1"`
	Fragility float64 `json:"fragility,omitempty" minimum:"0" maximum:"1"`
}

type HarvestRequest struct {
	Fragility float64 `json:"fragility,omitempty" minimum:"0" maximum:"1"`
}

type StaffSearchRequest struct {
	Candidates int     `json:"candidates" minimum:"1"`
	SkillLevel float64 `json:"skill_level,omitempty" minimum:"0" maximum:"1"`
}

type LenderSearchRequest struct {
	Amount float64 `json:"amount" minimum:"0"`
}

type RetotalRequest struct {
	TotalWork float64 `json:"total_work" minimum:"0"`
}

// EstimateRequest previews work for a category without starting
// anything. Fields beyond Category are read per category.
type EstimateRequest struct {
	Category    string  `json:"category" enum:"planting,harvesting,clearing,uprooting,crushing,fermentation,staff_search,administration,lender_search,bookkeeping"`
	VineyardID  string  `json:"vineyard_id,omitempty"`
	BatchID     string  `json:"batch_id,omitempty"`
	CandidateID string  `json:"candidate_id,omitempty"`
	Grape       string  `json:"grape,omitempty"`
	Density     int     `json:"density,omitempty"`
	Fragility   float64 `json:"fragility,omitempty"`
	Candidates  int     `json:"candidates,omitempty"`
	SkillLevel  float64 `json:"skill_level,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}
