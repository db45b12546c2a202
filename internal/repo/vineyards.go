package repo

import (
	"context"
	"database/sql"

	"vintner/internal/domain"
)

const vineyardColumns = `id,game_id,name,acres,altitude,grape,density,status,ripeness,vine_age,created_at,updated_at`

func scanVineyard(scan func(dest ...any) error) (domain.Vineyard, error) {
	var v domain.Vineyard
	var grape sql.NullString
	err := scan(&v.ID, &v.GameID, &v.Name, &v.Acres, &v.Altitude, &grape, &v.Density, &v.Status, &v.Ripeness, &v.VineAge, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if grape.Valid {
		v.Grape = grape.String
	}
	return v, nil
}

func (r Repo) InsertVineyard(ctx context.Context, tx *sql.Tx, v domain.Vineyard) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO vineyards(`+vineyardColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.GameID, v.Name, v.Acres, v.Altitude, nullable(v.Grape), v.Density, v.Status, v.Ripeness, v.VineAge, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r Repo) GetVineyard(ctx context.Context, id string) (domain.Vineyard, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+vineyardColumns+` FROM vineyards WHERE id=?`, id)
	return scanVineyard(row.Scan)
}

func (r Repo) GetVineyardTx(ctx context.Context, tx *sql.Tx, id string) (domain.Vineyard, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+vineyardColumns+` FROM vineyards WHERE id=?`, id)
	return scanVineyard(row.Scan)
}

func (r Repo) UpdateVineyardTx(ctx context.Context, tx *sql.Tx, v domain.Vineyard) error {
	res, err := tx.ExecContext(ctx, `UPDATE vineyards SET name=?, grape=?, density=?, status=?, ripeness=?, vine_age=?, updated_at=? WHERE id=?`,
		v.Name, nullable(v.Grape), v.Density, v.Status, v.Ripeness, v.VineAge, v.UpdatedAt, v.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListVineyards(ctx context.Context, gameID string) ([]domain.Vineyard, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+vineyardColumns+` FROM vineyards WHERE game_id=? ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Vineyard
	for rows.Next() {
		v, err := scanVineyard(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

const batchColumns = `id,game_id,vineyard_id,grape,stage,quantity_kg,liters,age_weeks,created_at,updated_at`

func scanBatch(scan func(dest ...any) error) (domain.WineBatch, error) {
	var b domain.WineBatch
	err := scan(&b.ID, &b.GameID, &b.VineyardID, &b.Grape, &b.Stage, &b.QuantityKg, &b.Liters, &b.AgeWeeks, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) InsertBatchTx(ctx context.Context, tx *sql.Tx, b domain.WineBatch) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO wine_batches(`+batchColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.GameID, b.VineyardID, b.Grape, b.Stage, b.QuantityKg, b.Liters, b.AgeWeeks, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r Repo) GetBatch(ctx context.Context, id string) (domain.WineBatch, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM wine_batches WHERE id=?`, id)
	return scanBatch(row.Scan)
}

func (r Repo) GetBatchTx(ctx context.Context, tx *sql.Tx, id string) (domain.WineBatch, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM wine_batches WHERE id=?`, id)
	return scanBatch(row.Scan)
}

func (r Repo) UpdateBatchTx(ctx context.Context, tx *sql.Tx, b domain.WineBatch) error {
	res, err := tx.ExecContext(ctx, `UPDATE wine_batches SET stage=?, quantity_kg=?, liters=?, age_weeks=?, updated_at=? WHERE id=?`,
		b.Stage, b.QuantityKg, b.Liters, b.AgeWeeks, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListBatches(ctx context.Context, gameID string) ([]domain.WineBatch, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+batchColumns+` FROM wine_batches WHERE game_id=? ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WineBatch
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}
