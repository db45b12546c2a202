package repo

import (
	"context"
	"database/sql"

	"vintner/internal/domain"
)

func (r Repo) InsertLoanOfferTx(ctx context.Context, tx *sql.Tx, o domain.LoanOffer) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO loan_offers(id,game_id,lender,principal,weekly_rate,term_weeks,created_at) VALUES (?,?,?,?,?,?,?)`,
		o.ID, o.GameID, o.Lender, o.Principal, o.WeeklyRate, o.TermWeeks, o.CreatedAt)
	return err
}

func (r Repo) GetLoanOffer(ctx context.Context, id string) (domain.LoanOffer, error) {
	var o domain.LoanOffer
	err := r.DB.QueryRowContext(ctx, `SELECT id,game_id,lender,principal,weekly_rate,term_weeks,created_at FROM loan_offers WHERE id=?`, id).
		Scan(&o.ID, &o.GameID, &o.Lender, &o.Principal, &o.WeeklyRate, &o.TermWeeks, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListLoanOffers(ctx context.Context, gameID string) ([]domain.LoanOffer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,game_id,lender,principal,weekly_rate,term_weeks,created_at FROM loan_offers WHERE game_id=? ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LoanOffer
	for rows.Next() {
		var o domain.LoanOffer
		if err := rows.Scan(&o.ID, &o.GameID, &o.Lender, &o.Principal, &o.WeeklyRate, &o.TermWeeks, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) DeleteLoanOfferTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM loan_offers WHERE id=?`, id)
	return err
}

func (r Repo) InsertLoanTx(ctx context.Context, tx *sql.Tx, l domain.Loan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO loans(id,game_id,lender,outstanding,weekly_payment,created_at) VALUES (?,?,?,?,?,?)`,
		l.ID, l.GameID, l.Lender, l.Outstanding, l.WeeklyPayment, l.CreatedAt)
	return err
}

func (r Repo) ListLoans(ctx context.Context, gameID string) ([]domain.Loan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,game_id,lender,outstanding,weekly_payment,created_at FROM loans WHERE game_id=? ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Loan
	for rows.Next() {
		var l domain.Loan
		if err := rows.Scan(&l.ID, &l.GameID, &l.Lender, &l.Outstanding, &l.WeeklyPayment, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, nil
}

func (r Repo) UpdateLoanTx(ctx context.Context, tx *sql.Tx, l domain.Loan) error {
	res, err := tx.ExecContext(ctx, `UPDATE loans SET outstanding=?, weekly_payment=? WHERE id=?`, l.Outstanding, l.WeeklyPayment, l.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteLoanTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id=?`, id)
	return err
}

func (r Repo) ListTransactions(ctx context.Context, gameID string, limit int) ([]domain.Transaction, error) {
	query := `SELECT id,game_id,week,amount,reason,created_at FROM transactions WHERE game_id=? ORDER BY id DESC`
	args := []any{gameID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.GameID, &t.Week, &t.Amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// CountTransactions sizes the bookkeeping workload.
func (r Repo) CountTransactions(ctx context.Context, gameID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM transactions WHERE game_id=?`, gameID).Scan(&n)
	return n, err
}
