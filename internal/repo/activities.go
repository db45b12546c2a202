package repo

import (
	"context"
	"database/sql"

	"vintner/internal/domain"
)

const activityColumns = `id,game_id,category,target_id,total_work,applied_work,params_json,cancellable,created_at,updated_at`

func scanActivity(scan func(dest ...any) error) (domain.Activity, error) {
	var a domain.Activity
	var targetID, params sql.NullString
	var cancellable int
	err := scan(&a.ID, &a.GameID, &a.Category, &targetID, &a.TotalWork, &a.AppliedWork, &params, &cancellable, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if targetID.Valid {
		a.TargetID = &targetID.String
	}
	if params.Valid {
		a.ParamsJSON = params.String
	}
	a.Cancellable = cancellable != 0
	return a, nil
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	cancellable := 0
	if a.Cancellable {
		cancellable = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO activities(`+activityColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.GameID, a.Category, nullableStringPtr(a.TargetID), a.TotalWork, a.AppliedWork,
		nullable(a.ParamsJSON), cancellable, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

// UpdateActivityTx rewrites the mutable activity fields. appliedWork,
// totalWork and params are the only fields the engine ever changes.
func (r Repo) UpdateActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	res, err := tx.ExecContext(ctx, `UPDATE activities SET total_work=?, applied_work=?, params_json=?, updated_at=? WHERE id=?`,
		a.TotalWork, a.AppliedWork, nullable(a.ParamsJSON), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteActivityTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListActivities returns every in-flight activity for a game in
// creation order. The tick processor iterates this snapshot.
func (r Repo) ListActivities(ctx context.Context, gameID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE game_id=? ORDER BY created_at ASC, id ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) ListActivitiesByTarget(ctx context.Context, gameID, targetID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE game_id=? AND target_id=? ORDER BY created_at ASC, id ASC`, gameID, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}
