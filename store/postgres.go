package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

const uniqueViolation = "23505"

// PostgresStore keeps pools and tickets in postgres. Atomically holds a
// row lock on the pool for the whole unit of work.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps a database/sql handle opened with the pgx driver.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, "pgx")}
}

type poolRow struct {
	ID             string    `db:"id"`
	Owner          string    `db:"owner"`
	Vault          string    `db:"vault"`
	CompanyName    string    `db:"company_name"`
	CompanyImage   string    `db:"company_image"`
	TicketPrice    uint64    `db:"ticket_price"`
	Items          []byte    `db:"items"`
	TotalValue     uint64    `db:"total_value"`
	TicketsSold    uint64    `db:"tickets_sold"`
	FundsHeld      uint64    `db:"funds_held"`
	PendingPayouts uint64    `db:"pending_payouts"`
	NoWinBP        uint32    `db:"no_win_bp"`
	Active         bool      `db:"active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const poolColumns = `id, owner, vault, company_name, company_image, ticket_price, items, total_value,
	tickets_sold, funds_held, pending_payouts, no_win_bp, active, created_at, updated_at`

func (r *poolRow) toPool() (*pool.Pool, error) {
	var items []pool.Item
	if err := json.Unmarshal(r.Items, &items); err != nil {
		return nil, fmt.Errorf("store: pool %s items: %w", r.ID, err)
	}
	return &pool.Pool{
		ID:             r.ID,
		Owner:          pool.Identity(r.Owner),
		Vault:          r.Vault,
		CompanyName:    r.CompanyName,
		CompanyImage:   r.CompanyImage,
		TicketPrice:    r.TicketPrice,
		Items:          items,
		TotalValue:     r.TotalValue,
		TicketsSold:    r.TicketsSold,
		FundsHeld:      r.FundsHeld,
		PendingPayouts: r.PendingPayouts,
		NoWinBP:        r.NoWinBP,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

type ticketRow struct {
	PoolID        string     `db:"pool_id"`
	Sequence      uint64     `db:"sequence"`
	Owner         string     `db:"owner"`
	Price         uint64     `db:"price"`
	Used          bool       `db:"used"`
	Outcome       []byte     `db:"outcome"`
	RewardClaimed bool       `db:"reward_claimed"`
	PurchasedAt   time.Time  `db:"purchased_at"`
	SpunAt        *time.Time `db:"spun_at"`
	ClaimedAt     *time.Time `db:"claimed_at"`
}

const ticketColumns = `pool_id, sequence, owner, price, used, outcome, reward_claimed, purchased_at, spun_at, claimed_at`

func (r *ticketRow) toTicket() (*pool.Ticket, error) {
	t := &pool.Ticket{
		PoolID:        r.PoolID,
		Owner:         pool.Identity(r.Owner),
		Sequence:      r.Sequence,
		Price:         r.Price,
		Used:          r.Used,
		RewardClaimed: r.RewardClaimed,
		PurchasedAt:   r.PurchasedAt,
		SpunAt:        r.SpunAt,
		ClaimedAt:     r.ClaimedAt,
	}
	if len(r.Outcome) > 0 {
		var o pool.Outcome
		if err := json.Unmarshal(r.Outcome, &o); err != nil {
			return nil, fmt.Errorf("store: ticket %s/%d outcome: %w", r.PoolID, r.Sequence, err)
		}
		t.Outcome = &o
	}
	return t, nil
}

// jsonArg encodes v for a jsonb column. The connection runs in simple
// protocol mode, where a []byte argument is inlined as bytea hex, so the
// document goes over as text.
func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// outcomeArg is SQL NULL for a ticket that has not been spun.
func outcomeArg(o *pool.Outcome) (any, error) {
	if o == nil {
		return nil, nil
	}
	return jsonArg(o)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) CreatePool(ctx context.Context, p *pool.Pool) error {
	items, err := jsonArg(p.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO pools (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, string(p.Owner), p.Vault, p.CompanyName, p.CompanyImage, p.TicketPrice, items, p.TotalValue,
		p.TicketsSold, p.FundsHeld, p.PendingPayouts, p.NoWinBP, p.Active, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrPoolExists
	}
	if err != nil {
		return fmt.Errorf("store: insert pool %s: %w", p.ID, err)
	}
	return nil
}

func getPool(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*pool.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var row poolRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("store: get pool %s: %w", id, err)
	}
	return row.toPool()
}

func getTicket(ctx context.Context, q sqlx.QueryerContext, poolID string, seq uint64) (*pool.Ticket, error) {
	var row ticketRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+ticketColumns+` FROM tickets WHERE pool_id = $1 AND sequence = $2`, poolID, seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get ticket %s/%d: %w", poolID, seq, err)
	}
	return row.toTicket()
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*pool.Pool, error) {
	return getPool(ctx, s.db, id, false)
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]*pool.Pool, error) {
	var rows []poolRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+poolColumns+` FROM pools ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list pools: %w", err)
	}
	out := make([]*pool.Pool, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPool()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, poolID string, seq uint64) (*pool.Ticket, error) {
	return getTicket(ctx, s.db, poolID, seq)
}

func (s *PostgresStore) ListTickets(ctx context.Context, poolID string, owner pool.Identity) ([]*pool.Ticket, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE pool_id = $1`
	args := []any{poolID}
	if owner != "" {
		query += ` AND owner = $2`
		args = append(args, string(owner))
	}
	query += ` ORDER BY sequence`
	var rows []ticketRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list tickets %s: %w", poolID, err)
	}
	out := make([]*pool.Ticket, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toTicket()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *PostgresStore) Atomically(ctx context.Context, poolID string, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	p, err := getPool(ctx, sqlTx, poolID, true)
	if err != nil {
		return err
	}
	if err := fn(&pgTx{ctx: ctx, tx: sqlTx, pool: p}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit pool %s: %w", poolID, err)
	}
	return nil
}

type pgTx struct {
	ctx  context.Context
	tx   *sqlx.Tx
	pool *pool.Pool
}

func (t *pgTx) Pool() *pool.Pool { return t.pool }

func (t *pgTx) SavePool(p *pool.Pool) error {
	if p.ID != t.pool.ID {
		return fmt.Errorf("store: pool %s saved in transaction for %s", p.ID, t.pool.ID)
	}
	items, err := jsonArg(p.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `UPDATE pools SET items = $2, tickets_sold = $3, funds_held = $4,
		pending_payouts = $5, active = $6, updated_at = $7 WHERE id = $1`,
		p.ID, items, p.TicketsSold, p.FundsHeld, p.PendingPayouts, p.Active, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: update pool %s: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) Ticket(seq uint64) (*pool.Ticket, error) {
	return getTicket(t.ctx, t.tx, t.pool.ID, seq)
}

func (t *pgTx) CreateTicket(tk *pool.Ticket) error {
	outcome, err := outcomeArg(tk.Outcome)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tk.PoolID, tk.Sequence, string(tk.Owner), tk.Price, tk.Used, outcome, tk.RewardClaimed,
		tk.PurchasedAt, tk.SpunAt, tk.ClaimedAt)
	if isUniqueViolation(err) {
		return ErrTicketExists
	}
	if err != nil {
		return fmt.Errorf("store: insert ticket %s/%d: %w", tk.PoolID, tk.Sequence, err)
	}
	return nil
}

func (t *pgTx) SaveTicket(tk *pool.Ticket) error {
	outcome, err := outcomeArg(tk.Outcome)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, `UPDATE tickets SET used = $3, outcome = $4, reward_claimed = $5,
		spun_at = $6, claimed_at = $7 WHERE pool_id = $1 AND sequence = $2`,
		tk.PoolID, tk.Sequence, tk.Used, outcome, tk.RewardClaimed, tk.SpunAt, tk.ClaimedAt)
	if err != nil {
		return fmt.Errorf("store: update ticket %s/%d: %w", tk.PoolID, tk.Sequence, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTicketNotFound
	}
	return nil
}
