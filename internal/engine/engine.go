// Package engine implements the activity and work simulation: every
// long-running player action is a quantity of abstract work paid down
// weekly by staff capacity, with per-category outcome handlers fired
// on progress and completion.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vintner/internal/config"
	"vintner/internal/domain"
	"vintner/internal/events"
	"vintner/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ErrInvalidActivity rejects creation with non-positive work or a
// malformed category/target. Fully recoverable by the caller.
var ErrInvalidActivity = errors.New("invalid activity")

// ErrNotCancellable rejects cancellation of a pinned activity.
var ErrNotCancellable = errors.New("activity is not cancellable")

// CallbackError reports a failed outcome handler. The appliedWork
// advance is already committed when this surfaces; the tick goes on.
type CallbackError struct {
	ActivityID string
	Category   domain.ActivityCategory
	Stage      string // "progress" or "completion"
	Err        error
}

func (c *CallbackError) Error() string {
	return fmt.Sprintf("%s handler for %s activity %s: %v", c.Stage, c.Category, c.ActivityID, c.Err)
}

func (c *CallbackError) Unwrap() error { return c.Err }

// NewGame creates a game row, seeds its config and starting cash.
func (e Engine) NewGame(ctx context.Context, gameID, name string) (domain.Game, error) {
	if gameID == "" {
		return domain.Game{}, fmt.Errorf("game id is required")
	}
	if name == "" {
		name = gameID
	}
	now := e.now().UTC().Format(time.RFC3339)
	g := domain.Game{
		ID:        gameID,
		Name:      name,
		Week:      1,
		Season:    domain.Seasons[0],
		Year:      1,
		Cash:      e.Config.Game.StartingCash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Game{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertGame(ctx, tx, g); err != nil {
		return domain.Game{}, fmt.Errorf("insert game: %w", err)
	}
	if err := e.Repo.UpsertGameConfigTx(ctx, tx, g.ID, e.Config); err != nil {
		return domain.Game{}, fmt.Errorf("insert game config: %w", err)
	}
	if g.Cash != 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO transactions(game_id,week,amount,reason,created_at) VALUES (?,?,?,?,?)`,
			g.ID, 0, g.Cash, "starting capital", now)
		if err != nil {
			return domain.Game{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "game.created", g.ID, "game", g.ID, events.EventPayload{"name": g.Name}); err != nil {
		return domain.Game{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Game{}, err
	}
	return g, nil
}

// BuyVineyard adds a plot of land and debits its price.
func (e Engine) BuyVineyard(ctx context.Context, gameID, name string, acres, altitude, price float64) (domain.Vineyard, error) {
	if acres <= 0 {
		return domain.Vineyard{}, fmt.Errorf("acres must be > 0")
	}
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return domain.Vineyard{}, err
	}
	if price > 0 && g.Cash < price {
		return domain.Vineyard{}, fmt.Errorf("insufficient cash: need %.2f, have %.2f", price, g.Cash)
	}
	now := e.now().UTC().Format(time.RFC3339)
	v := domain.Vineyard{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Name:      name,
		Acres:     acres,
		Altitude:  altitude,
		Status:    domain.VineyardBarren,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vineyard{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertVineyard(ctx, tx, v); err != nil {
		return domain.Vineyard{}, fmt.Errorf("insert vineyard: %w", err)
	}
	if price > 0 {
		if err := e.Repo.AdjustCashTx(ctx, tx, gameID, g.Week, -price, "vineyard purchase: "+name, now); err != nil {
			return domain.Vineyard{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "vineyard.bought", gameID, "vineyard", v.ID, events.EventPayload{"name": name, "acres": acres}); err != nil {
		return domain.Vineyard{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Vineyard{}, err
	}
	return v, nil
}
