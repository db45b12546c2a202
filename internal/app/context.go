package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vintner/internal/config"
	"vintner/internal/domain"
	"vintner/internal/repo"
)

// ResolveGameAndConfig picks the active game and ensures a game + config
// exist in DB, seeding defaults if missing. It prefers the override,
// then the single game in the DB. A missing game is created on the fly.
func ResolveGameAndConfig(ctx context.Context, gameOverride string, r repo.Repo) (string, *config.Config, error) {
	gameID := gameOverride
	if gameID == "" {
		if g, err := r.SingleGame(ctx); err == nil {
			gameID = g.ID
		} else {
			return "", nil, fmt.Errorf("game not specified; use --game")
		}
	}
	seedCfg := config.Default(gameID)

	if _, err := r.GetGame(ctx, gameID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createGame(ctx, r, gameID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetGameConfig(ctx, gameID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertGameConfig(ctx, gameID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed game config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Game.ID = gameID
	return gameID, cfg, nil
}

// createGame inserts a minimal game footprint using the seed config.
func createGame(ctx context.Context, r repo.Repo, gameID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(gameID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	g := domain.Game{
		ID:        gameID,
		Name:      gameID,
		Week:      1,
		Season:    domain.Seasons[0],
		Year:      1,
		Cash:      seedCfg.Game.StartingCash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.InsertGame(ctx, tx, g); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	if err := r.UpsertGameConfigTx(ctx, tx, gameID, seedCfg); err != nil {
		return fmt.Errorf("insert game config: %w", err)
	}
	if g.Cash != 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO transactions(game_id,week,amount,reason,created_at) VALUES (?,?,?,?,?)`,
			g.ID, 0, g.Cash, "starting capital", now); err != nil {
			return fmt.Errorf("record starting capital: %w", err)
		}
	}
	return tx.Commit()
}
