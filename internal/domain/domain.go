package domain

// ActivityCategory is the closed set of long-running player actions.
type ActivityCategory string

const (
	CategoryPlanting       ActivityCategory = "planting"
	CategoryHarvesting     ActivityCategory = "harvesting"
	CategoryClearing       ActivityCategory = "clearing"
	CategoryUprooting      ActivityCategory = "uprooting"
	CategoryCrushing       ActivityCategory = "crushing"
	CategoryFermentation   ActivityCategory = "fermentation"
	CategoryStaffSearch    ActivityCategory = "staff_search"
	CategoryAdministration ActivityCategory = "administration"
	CategoryLenderSearch   ActivityCategory = "lender_search"
	CategoryBookkeeping    ActivityCategory = "bookkeeping"
)

// Categories lists every valid activity category.
var Categories = []ActivityCategory{
	CategoryPlanting,
	CategoryHarvesting,
	CategoryClearing,
	CategoryUprooting,
	CategoryCrushing,
	CategoryFermentation,
	CategoryStaffSearch,
	CategoryAdministration,
	CategoryLenderSearch,
	CategoryBookkeeping,
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c ActivityCategory) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Skill maps a category to the staff skill that speeds it up.
func (c ActivityCategory) Skill() string {
	switch c {
	case CategoryPlanting, CategoryHarvesting, CategoryClearing, CategoryUprooting:
		return "field"
	case CategoryCrushing, CategoryFermentation:
		return "cellar"
	default:
		return "administration"
	}
}

// Activity is the persisted unit of scheduled work. appliedWork never
// exceeds totalWork; the registry owns the record for its lifetime.
type Activity struct {
	ID          string           `json:"id"`
	GameID      string           `json:"game_id"`
	Category    ActivityCategory `json:"category" enum:"planting,harvesting,clearing,uprooting,crushing,fermentation,staff_search,administration,lender_search,bookkeeping"`
	TargetID    *string          `json:"target_id,omitempty"`
	TotalWork   float64          `json:"total_work"`
	AppliedWork float64          `json:"applied_work"`
	ParamsJSON  string           `json:"params_json,omitempty"`
	Cancellable bool             `json:"cancellable"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
	UpdatedAt   string           `json:"updated_at" format:"date-time"`
}

// Fraction returns appliedWork/totalWork in [0,1].
func (a Activity) Fraction() float64 {
	if a.TotalWork <= 0 {
		return 0
	}
	f := a.AppliedWork / a.TotalWork
	if f > 1 {
		return 1
	}
	return f
}

// Remaining returns the work still owed before completion.
func (a Activity) Remaining() float64 {
	r := a.TotalWork - a.AppliedWork
	if r < 0 {
		return 0
	}
	return r
}

// Game is the single mutable game-state row for one save.
type Game struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Week      int     `json:"week"`
	Season    string  `json:"season" enum:"spring,summer,autumn,winter"`
	Year      int     `json:"year"`
	Cash      float64 `json:"cash"`
	Prestige  float64 `json:"prestige"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Seasons in play order; twelve weeks each.
var Seasons = []string{"spring", "summer", "autumn", "winter"}

const WeeksPerSeason = 12

// Vineyard is a plot of land the player owns.
type Vineyard struct {
	ID        string  `json:"id"`
	GameID    string  `json:"game_id"`
	Name      string  `json:"name"`
	Acres     float64 `json:"acres"`
	Altitude  float64 `json:"altitude"` // meters above sea level
	Grape     string  `json:"grape,omitempty"`
	Density   int     `json:"density"` // vines per acre, 0 while barren
	Status    string  `json:"status"`
	Ripeness  float64 `json:"ripeness"` // 0..1, resets on harvest
	VineAge   int     `json:"vine_age"` // seasons since planting completed
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Vineyard status values written by outcome handlers.
const (
	VineyardBarren    = "Barren"
	VineyardGrowing   = "Growing"
	VineyardHarvested = "Harvested"
)

// WineBatch tracks grapes from harvest through bottling.
type WineBatch struct {
	ID         string  `json:"id"`
	GameID     string  `json:"game_id"`
	VineyardID string  `json:"vineyard_id"`
	Grape      string  `json:"grape"`
	Stage      string  `json:"stage" enum:"grapes,must,wine"`
	QuantityKg float64 `json:"quantity_kg"`
	Liters     float64 `json:"liters"`
	AgeWeeks   int     `json:"age_weeks"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

const (
	StageGrapes = "grapes"
	StageMust   = "must"
	StageWine   = "wine"
)

// Staff is a hired worker. WeeklyWork is the workforce they contribute
// per tick before skill multipliers; skills range 0..1.
type Staff struct {
	ID          string  `json:"id"`
	GameID      string  `json:"game_id"`
	Name        string  `json:"name"`
	WeeklyWork  float64 `json:"weekly_work"`
	SkillField  float64 `json:"skill_field"`
	SkillCellar float64 `json:"skill_cellar"`
	SkillAdmin  float64 `json:"skill_admin"`
	WeeklyWage  float64 `json:"weekly_wage"`
	HiredAt     string  `json:"hired_at" format:"date-time"`
}

// SkillFor returns the staff member's rating for a named skill.
func (s Staff) SkillFor(skill string) float64 {
	switch skill {
	case "field":
		return s.SkillField
	case "cellar":
		return s.SkillCellar
	default:
		return s.SkillAdmin
	}
}

// Assignment binds a staff member to an activity. Assignments take
// effect at the next tick boundary, never mid-tick.
type Assignment struct {
	ActivityID string `json:"activity_id"`
	StaffID    string `json:"staff_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Candidate is a prospective hire produced by a staff search.
type Candidate struct {
	ID          string  `json:"id"`
	GameID      string  `json:"game_id"`
	Name        string  `json:"name"`
	WeeklyWork  float64 `json:"weekly_work"`
	SkillField  float64 `json:"skill_field"`
	SkillCellar float64 `json:"skill_cellar"`
	SkillAdmin  float64 `json:"skill_admin"`
	WeeklyWage  float64 `json:"weekly_wage"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// LoanOffer is produced by a lender search; taking it creates a Loan.
type LoanOffer struct {
	ID         string  `json:"id"`
	GameID     string  `json:"game_id"`
	Lender     string  `json:"lender"`
	Principal  float64 `json:"principal"`
	WeeklyRate float64 `json:"weekly_rate"` // fraction of principal per week
	TermWeeks  int     `json:"term_weeks"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// Loan is an active debt serviced at each tick.
type Loan struct {
	ID            string  `json:"id"`
	GameID        string  `json:"game_id"`
	Lender        string  `json:"lender"`
	Outstanding   float64 `json:"outstanding"`
	WeeklyPayment float64 `json:"weekly_payment"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

// Transaction is one cash movement in the ledger.
type Transaction struct {
	ID        int64   `json:"id"`
	GameID    string  `json:"game_id"`
	Week      int     `json:"week"`
	Amount    float64 `json:"amount"` // positive = income
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only game log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	GameID     string `json:"game_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
