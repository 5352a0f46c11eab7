package store

// Schema creates the SQLite tables. Money columns hold integer cents;
// timestamps hold Unix nanoseconds; average_price and price_history.price
// hold decimal strings.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id       TEXT PRIMARY KEY,
	cash_balance  INTEGER NOT NULL,
	starting_cash INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
	user_id       TEXT NOT NULL REFERENCES accounts(user_id),
	ticker        TEXT NOT NULL,
	quantity      INTEGER NOT NULL CHECK (quantity > 0),
	average_price TEXT NOT NULL,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (user_id, ticker)
);

CREATE TABLE IF NOT EXISTS orders (
	order_id       TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES accounts(user_id),
	ticker         TEXT NOT NULL,
	side           TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity > 0),
	limit_price    INTEGER NOT NULL,
	commission     INTEGER NOT NULL,
	status         TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at, order_id);
CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at);

CREATE TABLE IF NOT EXISTS transactions (
	transaction_id TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES accounts(user_id),
	order_id       TEXT NOT NULL UNIQUE,
	ticker         TEXT NOT NULL,
	side           TEXT NOT NULL,
	quantity       INTEGER NOT NULL,
	price          INTEGER NOT NULL,
	commission     INTEGER NOT NULL,
	total_amount   INTEGER NOT NULL,
	executed_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, executed_at);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	user_id        TEXT NOT NULL REFERENCES accounts(user_id),
	cash_balance   INTEGER NOT NULL,
	invested_value INTEGER NOT NULL,
	total_value    INTEGER NOT NULL,
	taken_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_user ON portfolio_snapshots(user_id, taken_at);

CREATE TABLE IF NOT EXISTS price_history (
	ticker         TEXT NOT NULL,
	price_date     INTEGER NOT NULL,
	price          TEXT NOT NULL,
	source         TEXT NOT NULL,
	is_transaction INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (ticker, price_date)
);
`
