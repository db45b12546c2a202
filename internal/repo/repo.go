package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vintner/internal/config"
	"vintner/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertGame(ctx context.Context, tx *sql.Tx, g domain.Game) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO games(id,name,week,season,year,cash,prestige,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		g.ID, g.Name, g.Week, g.Season, g.Year, g.Cash, g.Prestige, g.CreatedAt, g.UpdatedAt)
	return err
}

func scanGame(row *sql.Row) (domain.Game, error) {
	var g domain.Game
	err := row.Scan(&g.ID, &g.Name, &g.Week, &g.Season, &g.Year, &g.Cash, &g.Prestige, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) GetGame(ctx context.Context, id string) (domain.Game, error) {
	return scanGame(r.DB.QueryRowContext(ctx, `SELECT id,name,week,season,year,cash,prestige,created_at,updated_at FROM games WHERE id=?`, id))
}

// SingleGame resolves the only game in the workspace, failing when the
// save is ambiguous.
func (r Repo) SingleGame(ctx context.Context) (domain.Game, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,week,season,year,cash,prestige,created_at,updated_at FROM games`)
	if err != nil {
		return domain.Game{}, err
	}
	defer rows.Close()
	var games []domain.Game
	for rows.Next() {
		var g domain.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Week, &g.Season, &g.Year, &g.Cash, &g.Prestige, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return domain.Game{}, err
		}
		games = append(games, g)
	}
	if len(games) == 0 {
		return domain.Game{}, ErrNotFound
	}
	if len(games) > 1 {
		return domain.Game{}, fmt.Errorf("multiple games exist; specify --game")
	}
	return games[0], nil
}

func (r Repo) ListGames(ctx context.Context) ([]domain.Game, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,week,season,year,cash,prestige,created_at,updated_at FROM games ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Game
	for rows.Next() {
		var g domain.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Week, &g.Season, &g.Year, &g.Cash, &g.Prestige, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}

// AdvanceClockTx moves the calendar without touching cash or prestige.
// Those columns only move through relative adjustments so mid-tick
// deltas survive the clock write.
func (r Repo) AdvanceClockTx(ctx context.Context, tx *sql.Tx, gameID string, week, year int, season, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE games SET week=?, season=?, year=?, updated_at=? WHERE id=?`,
		week, season, year, now, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPrestigeTx applies a prestige delta.
func (r Repo) AddPrestigeTx(ctx context.Context, tx *sql.Tx, gameID string, delta float64, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE games SET prestige=prestige+?, updated_at=? WHERE id=?`, delta, now, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustCashTx applies a cash delta and records the ledger row.
func (r Repo) AdjustCashTx(ctx context.Context, tx *sql.Tx, gameID string, week int, amount float64, reason, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE games SET cash=cash+?, updated_at=? WHERE id=?`, amount, now, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO transactions(game_id,week,amount,reason,created_at) VALUES (?,?,?,?,?)`,
		gameID, week, amount, reason, now)
	return err
}

func (r Repo) UpsertGameConfig(ctx context.Context, gameID string, cfg *config.Config) error {
	return upsertGameConfig(ctx, r.DB, nil, gameID, cfg)
}

func (r Repo) UpsertGameConfigTx(ctx context.Context, tx *sql.Tx, gameID string, cfg *config.Config) error {
	return upsertGameConfig(ctx, nil, tx, gameID, cfg)
}

func upsertGameConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, gameID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Game.ID = gameID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO game_configs(game_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(game_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, gameID, string(payload), now, now)
	return err
}

func (r Repo) GetGameConfig(ctx context.Context, gameID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM game_configs WHERE game_id=?`, gameID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Game.ID == "" {
		cfg.Game.ID = gameID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, gameID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if gameID != "" {
		clauses = append(clauses, "game_id=?")
		args = append(args, gameID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,game_id,entity_kind,entity_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var gid, entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &gid, &e.EntityKind, &entID, &payload); err != nil {
			return nil, err
		}
		if gid.Valid {
			e.GameID = gid.String
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
