package repo

import (
	"context"
	"database/sql"
	"fmt"

	"opsdeck/internal/domain"
)

// InsertChecklist writes a checklist and its full item set in one
// transaction. Employee names are unique; a duplicate insert fails.
func (r Repo) InsertChecklist(ctx context.Context, c domain.Checklist) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var ticketID any
	if c.TicketID != nil {
		ticketID = *c.TicketID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO checklists(id,employee_name,ticket_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.EmployeeName, ticketID, c.Status, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("insert checklist: %w", translateUnique(err))
	}
	for _, it := range c.Items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(id,checklist_id,category,name,status,position) VALUES (?,?,?,?,?,?)`,
			it.ID, c.ID, it.Category, it.Name, it.Status, it.Position); err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
	}
	return tx.Commit()
}

func (r Repo) GetChecklist(ctx context.Context, id string) (domain.Checklist, error) {
	c, err := r.scanChecklist(r.DB.QueryRowContext(ctx,
		`SELECT id,employee_name,ticket_id,status,created_at,updated_at FROM checklists WHERE id=?`, id))
	if err != nil {
		return c, err
	}
	c.Items, err = r.checklistItems(ctx, c.ID)
	return c, err
}

// ChecklistExistsForEmployee reports whether an employee name already has a
// checklist, matched exactly.
func (r Repo) ChecklistExistsForEmployee(ctx context.Context, employeeName string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM checklists WHERE employee_name=?`, employeeName).Scan(&n)
	return n > 0, err
}

func (r Repo) ListChecklists(ctx context.Context) ([]domain.Checklist, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,employee_name,ticket_id,status,created_at,updated_at FROM checklists ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Checklist
	for rows.Next() {
		var c domain.Checklist
		var ticketID sql.NullString
		if err := rows.Scan(&c.ID, &c.EmployeeName, &ticketID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if ticketID.Valid {
			c.TicketID = &ticketID.String
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		items, err := r.checklistItems(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Items = items
	}
	return res, nil
}

// UpdateChecklistItemStatus applies one item mutation and recomputes the
// checklist's aggregate status in the same transaction, so a concurrent
// auto-close never observes a half-applied item set.
func (r Repo) UpdateChecklistItemStatus(ctx context.Context, checklistID, itemID, status string) (domain.Checklist, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Checklist{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET status=? WHERE id=? AND checklist_id=?`, status, itemID, checklistID)
	if err != nil {
		return domain.Checklist{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Checklist{}, ErrNotFound
	}

	rows, err := tx.QueryContext(ctx, `SELECT id,category,name,status,position FROM checklist_items WHERE checklist_id=? ORDER BY position`, checklistID)
	if err != nil {
		return domain.Checklist{}, err
	}
	items, err := scanItems(rows)
	if err != nil {
		return domain.Checklist{}, err
	}

	derived := domain.DeriveChecklistStatus(items)
	if _, err := tx.ExecContext(ctx, `UPDATE checklists SET status=?, updated_at=? WHERE id=?`, derived, now(), checklistID); err != nil {
		return domain.Checklist{}, err
	}

	c, err := r.scanChecklistTx(ctx, tx, checklistID)
	if err != nil {
		return domain.Checklist{}, err
	}
	c.Items = items
	if err := tx.Commit(); err != nil {
		return domain.Checklist{}, err
	}
	return c, nil
}

// CompleteChecklist marks a checklist completed unless it already is.
// Returns true when a transition happened.
func (r Repo) CompleteChecklist(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE checklists SET status=?, updated_at=? WHERE id=? AND status<>?`,
		domain.ChecklistCompleted, now(), id, domain.ChecklistCompleted)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ChecklistsWithTicket returns checklists carrying a ticket reference, the
// auto-close candidates.
func (r Repo) ChecklistsWithTicket(ctx context.Context) ([]domain.Checklist, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,employee_name,ticket_id,status,created_at,updated_at FROM checklists WHERE ticket_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Checklist
	for rows.Next() {
		var c domain.Checklist
		var ticketID sql.NullString
		if err := rows.Scan(&c.ID, &c.EmployeeName, &ticketID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if ticketID.Valid {
			c.TicketID = &ticketID.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) scanChecklist(row *sql.Row) (domain.Checklist, error) {
	var c domain.Checklist
	var ticketID sql.NullString
	err := row.Scan(&c.ID, &c.EmployeeName, &ticketID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if ticketID.Valid {
		c.TicketID = &ticketID.String
	}
	return c, nil
}

func (r Repo) scanChecklistTx(ctx context.Context, tx *sql.Tx, id string) (domain.Checklist, error) {
	var c domain.Checklist
	var ticketID sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,employee_name,ticket_id,status,created_at,updated_at FROM checklists WHERE id=?`, id).
		Scan(&c.ID, &c.EmployeeName, &ticketID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if ticketID.Valid {
		c.TicketID = &ticketID.String
	}
	return c, nil
}

func (r Repo) checklistItems(ctx context.Context, checklistID string) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,category,name,status,position FROM checklist_items WHERE checklist_id=? ORDER BY position`, checklistID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]domain.ChecklistItem, error) {
	defer rows.Close()
	var items []domain.ChecklistItem
	for rows.Next() {
		var it domain.ChecklistItem
		if err := rows.Scan(&it.ID, &it.Category, &it.Name, &it.Status, &it.Position); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
