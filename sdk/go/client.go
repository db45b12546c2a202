package vintnersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Vintner HTTP API client.
type Client struct {
	BaseURL     string
	GameID      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, gameID string) *Client {
	return &Client{
		BaseURL: baseURL,
		GameID:  gameID,
		Timeout: 10 * time.Second,
	}
}

// Game represents the API game model.
type Game struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Week     int     `json:"week"`
	Season   string  `json:"season"`
	Year     int     `json:"year"`
	Cash     float64 `json:"cash"`
	Prestige float64 `json:"prestige"`
}

// Vineyard represents a plot of land.
type Vineyard struct {
	ID       string  `json:"id"`
	GameID   string  `json:"game_id"`
	Name     string  `json:"name"`
	Acres    float64 `json:"acres"`
	Altitude float64 `json:"altitude"`
	Grape    string  `json:"grape"`
	Density  int     `json:"density"`
	Status   string  `json:"status"`
	Ripeness float64 `json:"ripeness"`
	VineAge  int     `json:"vine_age"`
}

// Activity represents an in-flight unit of work.
type Activity struct {
	ID          string  `json:"id"`
	GameID      string  `json:"game_id"`
	Category    string  `json:"category"`
	TargetID    *string `json:"target_id,omitempty"`
	TotalWork   float64 `json:"total_work"`
	AppliedWork float64 `json:"applied_work"`
	Cancellable bool    `json:"cancellable"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ActivityTick is the per-activity outcome of one week.
type ActivityTick struct {
	ActivityID string  `json:"activity_id"`
	Category   string  `json:"category"`
	Delta      float64 `json:"delta"`
	Fraction   float64 `json:"fraction"`
	Completed  bool    `json:"completed"`
	HandlerErr string  `json:"handler_err,omitempty"`
}

// TickReport summarizes one advanced week.
type TickReport struct {
	Game       Game           `json:"game"`
	Activities []ActivityTick `json:"activities"`
}

// Event represents a log entry. Payload is the raw JSON document the
// engine recorded.
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	GameID      string `json:"game_id,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	PayloadJSON string `json:"payload_json"`
}

// Estimate is a work-cost preview.
type Estimate struct {
	Category  string  `json:"category"`
	BaseWork  float64 `json:"base_work"`
	TotalWork float64 `json:"total_work"`
	Factors   []struct {
		Label      string  `json:"label"`
		Multiplier float64 `json:"multiplier"`
	} `json:"factors,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Game fetches the current game state.
func (c *Client) Game(ctx context.Context) (Game, error) {
	var resp Game
	err := c.do(ctx, http.MethodGet, c.gamePath(""), nil, &resp)
	return resp, err
}

// Advance ticks the game clock forward by the given number of weeks.
func (c *Client) Advance(ctx context.Context, weeks int) ([]TickReport, error) {
	var resp []TickReport
	err := c.do(ctx, http.MethodPost, c.gamePath("advance"), map[string]any{"weeks": weeks}, &resp)
	return resp, err
}

// BuyVineyard purchases a new plot.
func (c *Client) BuyVineyard(ctx context.Context, name string, acres, altitude, price float64) (Vineyard, error) {
	body := map[string]any{
		"name":     name,
		"acres":    acres,
		"altitude": altitude,
		"price":    price,
	}
	var resp Vineyard
	err := c.do(ctx, http.MethodPost, c.gamePath("vineyards"), body, &resp)
	return resp, err
}

// Vineyards lists all plots.
func (c *Client) Vineyards(ctx context.Context) ([]Vineyard, error) {
	var resp []Vineyard
	err := c.do(ctx, http.MethodGet, c.gamePath("vineyards"), nil, &resp)
	return resp, err
}

// Plant starts a planting activity on a vineyard.
func (c *Client) Plant(ctx context.Context, vineyardID, grape string, density int, fragility float64) (Activity, error) {
	body := map[string]any{
		"grape":     grape,
		"density":   density,
		"fragility": fragility,
	}
	var resp Activity
	endpoint := c.gamePath(fmt.Sprintf("vineyards/%s/plant", url.PathEscape(vineyardID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Harvest starts a harvesting activity on a vineyard.
func (c *Client) Harvest(ctx context.Context, vineyardID string, fragility float64) (Activity, error) {
	body := map[string]any{"fragility": fragility}
	var resp Activity
	endpoint := c.gamePath(fmt.Sprintf("vineyards/%s/harvest", url.PathEscape(vineyardID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Activities lists in-flight activities.
func (c *Client) Activities(ctx context.Context) ([]Activity, error) {
	var resp []Activity
	err := c.do(ctx, http.MethodGet, c.gamePath("activities"), nil, &resp)
	return resp, err
}

// CancelActivity cancels an in-flight activity.
func (c *Client) CancelActivity(ctx context.Context, activityID string) error {
	endpoint := c.gamePath(fmt.Sprintf("activities/%s", url.PathEscape(activityID)))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// AssignStaff puts a staff member on an activity.
func (c *Client) AssignStaff(ctx context.Context, activityID, staffID string) error {
	endpoint := c.gamePath(fmt.Sprintf("activities/%s/assignments/%s", url.PathEscape(activityID), url.PathEscape(staffID)))
	return c.do(ctx, http.MethodPut, endpoint, nil, nil)
}

// UnassignStaff takes a staff member off an activity.
func (c *Client) UnassignStaff(ctx context.Context, activityID, staffID string) error {
	endpoint := c.gamePath(fmt.Sprintf("activities/%s/assignments/%s", url.PathEscape(activityID), url.PathEscape(staffID)))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// EstimateWork previews a work estimate without starting anything.
// The fields consulted depend on the category.
func (c *Client) EstimateWork(ctx context.Context, body map[string]any) (Estimate, error) {
	var resp Estimate
	err := c.do(ctx, http.MethodPost, c.gamePath("estimates"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.gamePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) gamePath(p string) string {
	game := url.PathEscape(c.GameID)
	if p == "" {
		return fmt.Sprintf("v0/games/%s", game)
	}
	return fmt.Sprintf("v0/games/%s/%s", game, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
