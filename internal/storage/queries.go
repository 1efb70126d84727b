package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"designledger/internal/core"
)

// timeLayout keeps fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the SQL used by SQLiteRepository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const insertProject = `INSERT INTO projects (id, name, client_name, budget_cents, created_at) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertProject(ctx context.Context, p core.Project) error {
	_, err := q.db.ExecContext(ctx, insertProject, p.ID, p.Name, p.ClientName, p.Budget.Cents, p.CreatedAt.UTC().Format(timeLayout))
	return err
}

const selectProjects = `SELECT id, name, client_name, budget_cents, created_at FROM projects`

func scanProject(row scanner) (core.Project, error) {
	var (
		p       core.Project
		created string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.ClientName, &p.Budget.Cents, &created); err != nil {
		return core.Project{}, err
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

func (q *Queries) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := q.db.QueryContext(ctx, selectProjects+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) GetProject(ctx context.Context, id string) (core.Project, error) {
	return scanProject(q.db.QueryRowContext(ctx, selectProjects+` WHERE id = ?`, id))
}

const insertTransaction = `INSERT INTO transactions
    (id, project_id, source, date, amount_cents, type, notes, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		tx.ID, nullString(tx.ProjectID), tx.Source, tx.Date.String(), tx.Amount.Cents,
		string(tx.Type), tx.Notes, tx.CreatedAt.UTC().Format(timeLayout), tx.UpdatedAt.UTC().Format(timeLayout))
	return err
}

const updateTransaction = `UPDATE transactions
    SET source = ?, date = ?, amount_cents = ?, type = ?, notes = ?, updated_at = ?
    WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		tx.Source, tx.Date.String(), tx.Amount.Cents, string(tx.Type), tx.Notes,
		tx.UpdatedAt.UTC().Format(timeLayout), tx.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectTransactions = `SELECT id, project_id, source, date, amount_cents, type, notes, created_at, updated_at FROM transactions`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		tx                      core.Transaction
		projectID               sql.NullString
		date, typ, created, upd string
	)
	if err := row.Scan(&tx.ID, &projectID, &tx.Source, &date, &tx.Amount.Cents, &typ, &tx.Notes, &created, &upd); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	tx.ProjectID = fromNull(projectID)
	tx.Date = d
	tx.Type = core.TransactionType(typ)
	tx.CreatedAt = parseTime(created)
	tx.UpdatedAt = parseTime(upd)
	return tx, nil
}

func (q *Queries) ListTransactions(ctx context.Context, projectID *string) ([]core.Transaction, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if projectID == nil {
		rows, err = q.db.QueryContext(ctx, selectTransactions+` WHERE project_id IS NULL ORDER BY date DESC, created_at DESC`)
	} else {
		rows, err = q.db.QueryContext(ctx, selectTransactions+` WHERE project_id = ? ORDER BY date DESC, created_at DESC`, *projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, selectTransactions+` WHERE id = ?`, id))
}

const insertItem = `INSERT INTO items
    (id, description, sku, price_cents, project_id, transaction_id, legacy_transaction_id,
     prior_project_transaction_id, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertItem(ctx context.Context, it core.Item) error {
	ts := it.UpdatedAt.UTC().Format(timeLayout)
	_, err := q.db.ExecContext(ctx, insertItem,
		it.ID, it.Description, it.SKU, it.Price.Cents, nullString(it.ProjectID),
		nullString(it.TransactionID), nullString(it.LegacyTransactionID),
		nullString(it.PriorProjectTransactionID), ts, ts)
	return err
}

const updateItemPlacement = `UPDATE items
    SET project_id = ?, transaction_id = ?, prior_project_transaction_id = ?, updated_at = ?
    WHERE id = ?`

func (q *Queries) UpdateItemPlacement(ctx context.Context, it core.Item) error {
	_, err := q.db.ExecContext(ctx, updateItemPlacement,
		nullString(it.ProjectID), nullString(it.TransactionID),
		nullString(it.PriorProjectTransactionID), it.UpdatedAt.UTC().Format(timeLayout), it.ID)
	return err
}

const selectItems = `SELECT id, description, sku, price_cents, project_id, transaction_id,
    legacy_transaction_id, prior_project_transaction_id, updated_at FROM items`

func scanItem(row scanner) (core.Item, error) {
	var (
		it                         core.Item
		project, tx, legacy, prior sql.NullString
		updated                    string
	)
	if err := row.Scan(&it.ID, &it.Description, &it.SKU, &it.Price.Cents, &project, &tx, &legacy, &prior, &updated); err != nil {
		return core.Item{}, err
	}
	it.ProjectID = fromNull(project)
	it.TransactionID = fromNull(tx)
	it.LegacyTransactionID = fromNull(legacy)
	it.PriorProjectTransactionID = fromNull(prior)
	it.UpdatedAt = parseTime(updated)
	return it, nil
}

func (q *Queries) GetItem(ctx context.Context, id string) (core.Item, error) {
	return scanItem(q.db.QueryRowContext(ctx, selectItems+` WHERE id = ?`, id))
}

// referencingItems matches items whose columns or movement history mention ?1.
const referencingItems = `transaction_id = ?1 OR legacy_transaction_id = ?1 OR prior_project_transaction_id = ?1
    OR id IN (SELECT item_id FROM item_movements WHERE from_transaction_id = ?1 OR to_transaction_id = ?1)`

func (q *Queries) ListItemsReferencing(ctx context.Context, transactionID string) ([]core.Item, error) {
	rows, err := q.db.QueryContext(ctx, selectItems+` WHERE `+referencingItems+` ORDER BY created_at, rowid`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const insertMovement = `INSERT INTO item_movements
    (item_id, from_transaction_id, to_transaction_id, to_project_id, moved_at)
    VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertMovement(ctx context.Context, m core.Movement) error {
	_, err := q.db.ExecContext(ctx, insertMovement,
		m.ItemID, m.FromTransactionID, nullString(m.ToTransactionID), nullString(m.ToProjectID),
		m.At.UTC().Format(timeLayout))
	return err
}

// ListMovementsReferencing returns, in chronological order, the movements of
// every item that references transactionID.
func (q *Queries) ListMovementsReferencing(ctx context.Context, transactionID string) (map[string][]core.Movement, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT item_id, from_transaction_id, to_transaction_id, to_project_id, moved_at
        FROM item_movements WHERE item_id IN (SELECT id FROM items WHERE `+referencingItems+`)
        ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]core.Movement)
	for rows.Next() {
		var (
			m          core.Movement
			to, toProj sql.NullString
			movedAt    string
		)
		if err := rows.Scan(&m.ItemID, &m.FromTransactionID, &to, &toProj, &movedAt); err != nil {
			return nil, err
		}
		m.ToTransactionID = fromNull(to)
		m.ToProjectID = fromNull(toProj)
		m.At = parseTime(movedAt)
		out[m.ItemID] = append(out[m.ItemID], m)
	}
	return out, rows.Err()
}

func (q *Queries) CountTransactionsByProject(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT COALESCE(project_id, ''), COUNT(*) FROM transactions GROUP BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
