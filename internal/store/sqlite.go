package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

// SQLiteStore is a Store backed by a SQLite database. Every WithAccount
// unit runs in a BEGIN IMMEDIATE transaction while also holding the
// per-account lock, so writers never interleave and a failed unit rolls
// back completely.
type SQLiteStore struct {
	db    *sql.DB
	locks *accountLocks
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, locks: newAccountLocks()}, nil
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, cash_balance, starting_cash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.CashBalance, a.StartingCash, nanos(a.CreatedAt), nanos(a.UpdatedAt),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return domain.ErrAccountAlreadyExists
	}
	return err
}

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	return getAccount(ctx, s.db, userID)
}

func getAccount(ctx context.Context, q queryer, userID string) (*domain.Account, error) {
	var (
		a                domain.Account
		created, updated int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT user_id, cash_balance, starting_cash, created_at, updated_at FROM accounts WHERE user_id = ?`, userID,
	).Scan(&a.UserID, &a.CashBalance, &a.StartingCash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return &a, nil
}

func (s *SQLiteStore) GetHolding(ctx context.Context, userID, ticker string) (*domain.Holding, error) {
	return getHolding(ctx, s.db, userID, ticker)
}

const holdingColumns = `user_id, ticker, quantity, average_price, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHolding(r rowScanner) (*domain.Holding, error) {
	var (
		h       domain.Holding
		avg     string
		updated int64
	)
	if err := r.Scan(&h.UserID, &h.Ticker, &h.Quantity, &avg, &updated); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(avg)
	if err != nil {
		return nil, fmt.Errorf("parse average_price %q: %w", avg, err)
	}
	h.AveragePrice = d
	h.UpdatedAt = fromNanos(updated)
	return &h, nil
}

func getHolding(ctx context.Context, q queryer, userID, ticker string) (*domain.Holding, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = ? AND ticker = ?`, userID, ticker)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

func (s *SQLiteStore) ListHoldings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = ? ORDER BY ticker`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

const orderColumns = `order_id, user_id, ticker, side, quantity, limit_price, commission, status, failure_reason, created_at, updated_at`

func scanOrder(r rowScanner) (*domain.Order, error) {
	var (
		o                domain.Order
		side, status     string
		created, updated int64
	)
	err := r.Scan(&o.OrderID, &o.UserID, &o.Ticker, &side, &o.Quantity, &o.LimitPrice,
		&o.Commission, &status, &o.FailureReason, &created, &updated)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = fromNanos(created)
	o.UpdatedAt = fromNanos(updated)
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	result := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.UserID, o.Ticker, string(o.Side), o.Quantity, o.LimitPrice, o.Commission,
		string(o.Status), o.FailureReason, nanos(o.CreatedAt), nanos(o.UpdatedAt),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return domain.ErrAccountNotFound
	}
	return err
}

func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orderID, "")
}

// getOrder loads an order; a non-empty userID restricts it to that owner.
func getOrder(ctx context.Context, q queryer, orderID, userID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = ?`
	args := []any{orderID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

func (s *SQLiteStore) ListPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY created_at, order_id`,
		string(domain.OrderStatusPending))
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (s *SQLiteStore) ListPendingOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? AND user_id = ? ORDER BY created_at, order_id`,
		string(domain.OrderStatusPending), userID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (s *SQLiteStore) ListOrdersByUser(ctx context.Context, userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		where += ` AND status = ?`
		args = append(args, string(*status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, user_id, order_id, ticker, side, quantity, price, commission, total_amount, executed_at
		FROM transactions WHERE user_id = ? ORDER BY executed_at DESC, transaction_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Transaction, 0)
	for rows.Next() {
		var (
			t        domain.Transaction
			side     string
			executed int64
		)
		if err := rows.Scan(&t.TransactionID, &t.UserID, &t.OrderID, &t.Ticker, &side, &t.Quantity,
			&t.Price, &t.Commission, &t.TotalAmount, &executed); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.ExecutedAt = fromNanos(executed)
		result = append(result, &t)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_snapshots (user_id, cash_balance, invested_value, total_value, taken_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.UserID, snap.CashBalance, snap.InvestedValue, snap.TotalValue, nanos(snap.TakenAt))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return domain.ErrAccountNotFound
	}
	return err
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, userID string) ([]*domain.PortfolioSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, cash_balance, invested_value, total_value, taken_at
		FROM portfolio_snapshots WHERE user_id = ? ORDER BY taken_at, rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.PortfolioSnapshot, 0)
	for rows.Next() {
		var (
			snap  domain.PortfolioSnapshot
			taken int64
		)
		if err := rows.Scan(&snap.UserID, &snap.CashBalance, &snap.InvestedValue, &snap.TotalValue, &taken); err != nil {
			return nil, err
		}
		snap.TakenAt = fromNanos(taken)
		result = append(result, &snap)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) PutPrice(ctx context.Context, p *domain.PricePoint) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_history (ticker, price_date, price, source, is_transaction, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, price_date) DO NOTHING`,
		p.Ticker, nanos(domain.PriceDate(p.Date)), p.Price.String(), p.Source, p.IsTransaction, nanos(p.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const priceColumns = `ticker, price_date, price, source, is_transaction, created_at`

func scanPrice(r rowScanner) (*domain.PricePoint, error) {
	var (
		p             domain.PricePoint
		raw           string
		date, created int64
	)
	if err := r.Scan(&p.Ticker, &date, &raw, &p.Source, &p.IsTransaction, &created); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", raw, err)
	}
	p.Price = d
	p.Date = fromNanos(date)
	p.CreatedAt = fromNanos(created)
	return &p, nil
}

func (s *SQLiteStore) ListPrices(ctx context.Context, ticker string, from, to time.Time) ([]*domain.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+priceColumns+` FROM price_history
		WHERE ticker = ? AND price_date BETWEEN ? AND ? ORDER BY price_date`,
		ticker, nanos(domain.PriceDate(from)), nanos(domain.PriceDate(to)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.PricePoint, 0)
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) LatestPrice(ctx context.Context, ticker string) (*domain.PricePoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+priceColumns+` FROM price_history WHERE ticker = ? ORDER BY price_date DESC LIMIT 1`, ticker)
	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) WithAccount(ctx context.Context, userID string, fn func(tx AccountTx) error) (err error) {
	unlock, err := s.locks.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{ctx: ctx, tx: sqlTx, userID: userID}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// sqliteTx implements AccountTx over an open *sql.Tx.
type sqliteTx struct {
	ctx    context.Context
	tx     *sql.Tx
	userID string
}

func (t *sqliteTx) Account() (*domain.Account, error) {
	return getAccount(t.ctx, t.tx, t.userID)
}

func (t *sqliteTx) Holding(ticker string) (*domain.Holding, error) {
	return getHolding(t.ctx, t.tx, t.userID, ticker)
}

func (t *sqliteTx) Order(orderID string) (*domain.Order, error) {
	return getOrder(t.ctx, t.tx, orderID, t.userID)
}

func (t *sqliteTx) InsertTransaction(tr *domain.Transaction) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO transactions
		(transaction_id, user_id, order_id, ticker, side, quantity, price, commission, total_amount, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.TransactionID, t.userID, tr.OrderID, tr.Ticker, string(tr.Side), tr.Quantity,
		tr.Price, tr.Commission, tr.TotalAmount, nanos(tr.ExecutedAt))
	return err
}

func (t *sqliteTx) PutHolding(h *domain.Holding) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO holdings (user_id, ticker, quantity, average_price, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, ticker) DO UPDATE SET
			quantity = excluded.quantity,
			average_price = excluded.average_price,
			updated_at = excluded.updated_at`,
		t.userID, h.Ticker, h.Quantity, h.AveragePrice.String(), nanos(time.Now()))
	return err
}

func (t *sqliteTx) DeleteHolding(ticker string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM holdings WHERE user_id = ? AND ticker = ?`, t.userID, ticker)
	return err
}

func (t *sqliteTx) SetCashBalance(cents int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE accounts SET cash_balance = ?, updated_at = ? WHERE user_id = ?`,
		cents, nanos(time.Now()), t.userID)
	if err != nil {
		return err
	}
	return requireOneRow(res, domain.ErrAccountNotFound)
}

func (t *sqliteTx) SetOrderStatus(orderID string, status domain.OrderStatus, reason string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE orders SET status = ?, failure_reason = ?, updated_at = ? WHERE order_id = ? AND user_id = ?`,
		string(status), reason, nanos(time.Now()), orderID, t.userID)
	if err != nil {
		return err
	}
	return requireOneRow(res, domain.ErrOrderNotFound)
}

func (t *sqliteTx) DeleteOrder(orderID string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM orders WHERE order_id = ? AND user_id = ?`, orderID, t.userID)
	if err != nil {
		return err
	}
	return requireOneRow(res, domain.ErrOrderNotFound)
}

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
