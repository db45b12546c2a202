package repo

import (
	"context"
	"database/sql"

	"vintner/internal/domain"
)

const staffColumns = `id,game_id,name,weekly_work,skill_field,skill_cellar,skill_admin,weekly_wage,hired_at`

func scanStaff(scan func(dest ...any) error) (domain.Staff, error) {
	var s domain.Staff
	err := scan(&s.ID, &s.GameID, &s.Name, &s.WeeklyWork, &s.SkillField, &s.SkillCellar, &s.SkillAdmin, &s.WeeklyWage, &s.HiredAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertStaffTx(ctx context.Context, tx *sql.Tx, s domain.Staff) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO staff(`+staffColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.GameID, s.Name, s.WeeklyWork, s.SkillField, s.SkillCellar, s.SkillAdmin, s.WeeklyWage, s.HiredAt)
	return err
}

func (r Repo) GetStaff(ctx context.Context, id string) (domain.Staff, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id=?`, id)
	return scanStaff(row.Scan)
}

func (r Repo) ListStaff(ctx context.Context, gameID string) ([]domain.Staff, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE game_id=? ORDER BY hired_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Staff
	for rows.Next() {
		s, err := scanStaff(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) DeleteStaff(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM staff WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) Assign(ctx context.Context, activityID, staffID, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO assignments(activity_id,staff_id,created_at) VALUES (?,?,?)`,
		activityID, staffID, now)
	return err
}

func (r Repo) Unassign(ctx context.Context, activityID, staffID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM assignments WHERE activity_id=? AND staff_id=?`, activityID, staffID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssignments returns every assignment for a game's activities.
func (r Repo) ListAssignments(ctx context.Context, gameID string) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.activity_id, a.staff_id, a.created_at
FROM assignments a JOIN activities act ON act.id=a.activity_id
WHERE act.game_id=? ORDER BY a.created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ActivityID, &a.StaffID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) ListAssignmentsForActivity(ctx context.Context, activityID string) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT activity_id,staff_id,created_at FROM assignments WHERE activity_id=? ORDER BY created_at ASC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ActivityID, &a.StaffID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

const candidateColumns = `id,game_id,name,weekly_work,skill_field,skill_cellar,skill_admin,weekly_wage,created_at`

func (r Repo) InsertCandidateTx(ctx context.Context, tx *sql.Tx, c domain.Candidate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO candidates(`+candidateColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.GameID, c.Name, c.WeeklyWork, c.SkillField, c.SkillCellar, c.SkillAdmin, c.WeeklyWage, c.CreatedAt)
	return err
}

func (r Repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	var c domain.Candidate
	err := r.DB.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id=?`, id).
		Scan(&c.ID, &c.GameID, &c.Name, &c.WeeklyWork, &c.SkillField, &c.SkillCellar, &c.SkillAdmin, &c.WeeklyWage, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCandidateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Candidate, error) {
	var c domain.Candidate
	err := tx.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id=?`, id).
		Scan(&c.ID, &c.GameID, &c.Name, &c.WeeklyWork, &c.SkillField, &c.SkillCellar, &c.SkillAdmin, &c.WeeklyWage, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCandidates(ctx context.Context, gameID string) ([]domain.Candidate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE game_id=? ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.GameID, &c.Name, &c.WeeklyWork, &c.SkillField, &c.SkillCellar, &c.SkillAdmin, &c.WeeklyWage, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func (r Repo) DeleteCandidateTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE id=?`, id)
	return err
}
