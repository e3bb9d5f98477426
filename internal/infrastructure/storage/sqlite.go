// Package storage is the run-databases facade: one sqlite file per bot
// run, handing out the orders, trades, transactions and run-metadata
// tables. The engine core stays memory-resident and writes here only
// through this facade; nothing reads these tables on the hot path.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/quantra/tradecore/internal/domain"
)

// RunDatabases wraps the per-run sqlite file.
type RunDatabases struct {
	db    *sql.DB
	botID string
}

// Open creates (or reopens) the databases of one bot id under dir.
func Open(dir, botID string) (*RunDatabases, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.db", botID))
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	r := &RunDatabases{db: db, botID: botID}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *RunDatabases) Close() error { return r.db.Close() }

func (r *RunDatabases) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS run_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			exchange_order_id TEXT,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			origin_price TEXT NOT NULL,
			origin_quantity TEXT NOT NULL,
			filled_price TEXT NOT NULL,
			filled_quantity TEXT NOT NULL,
			simulated BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_exchange_symbol ON orders(exchange, symbol);`,
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			cost TEXT NOT NULL,
			fee_currency TEXT,
			fee_cost TEXT,
			close_status TEXT NOT NULL,
			simulated BOOLEAN NOT NULL DEFAULT 0,
			executed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exchange_symbol ON trades(exchange, symbol);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			exchange TEXT NOT NULL,
			kind TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount TEXT NOT NULL,
			reference TEXT,
			created_at DATETIME NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	return nil
}

// SetMetadata upserts one run-metadata row.
func (r *RunDatabases) SetMetadata(ctx context.Context, key, value string) error {
	query := `INSERT INTO run_metadata (key, value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

func (r *RunDatabases) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM run_metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SaveOrder upserts an order snapshot keyed by its local id.
func (r *RunDatabases) SaveOrder(ctx context.Context, exchange string, o *domain.Order) error {
	query := `INSERT INTO orders (order_id, exchange_order_id, exchange, symbol, side, type, status,
				origin_price, origin_quantity, filled_price, filled_quantity, simulated, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(order_id) DO UPDATE SET
				exchange_order_id=excluded.exchange_order_id,
				status=excluded.status,
				filled_price=excluded.filled_price,
				filled_quantity=excluded.filled_quantity,
				updated_at=excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		o.OrderID, o.ExchangeOrderID, exchange, o.Symbol, string(o.Side), string(o.Type), string(o.Status),
		o.OriginPrice.String(), o.OriginQuantity.String(),
		o.FilledPrice.String(), o.FilledQuantity.String(),
		o.Simulated, o.CreationTime.UTC(), time.Now().UTC())
	return err
}

// ListOrders returns the newest saved order snapshots of one exchange.
func (r *RunDatabases) ListOrders(ctx context.Context, exchange string, limit int) ([]*domain.Order, error) {
	query := `SELECT order_id, exchange_order_id, symbol, side, type, status,
				origin_price, origin_quantity, filled_price, filled_quantity, simulated, created_at
			  FROM orders WHERE exchange = ? ORDER BY updated_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, kind, status string
		var originPrice, originQty, filledPrice, filledQty string
		if err := rows.Scan(&o.OrderID, &o.ExchangeOrderID, &o.Symbol, &side, &kind, &status,
			&originPrice, &originQty, &filledPrice, &filledQty, &o.Simulated, &o.CreationTime); err != nil {
			return nil, err
		}
		o.Side = domain.OrderSide(side)
		o.Type = domain.TraderOrderType(kind)
		o.Status = domain.OrderStatus(status)
		o.OriginPrice = mustDecimal(originPrice)
		o.OriginQuantity = mustDecimal(originQty)
		o.FilledPrice = mustDecimal(filledPrice)
		o.FilledQuantity = mustDecimal(filledQty)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// SaveTrade inserts a trade snapshot; duplicates by trade id are
// ignored because a trade is immutable.
func (r *RunDatabases) SaveTrade(ctx context.Context, exchange string, t *domain.Trade) error {
	feeCurrency, feeCost := "", ""
	if t.Fee != nil {
		feeCurrency = t.Fee.Currency
		feeCost = t.Fee.Cost.String()
	}
	query := `INSERT OR IGNORE INTO trades (trade_id, order_id, exchange, symbol, side, type,
				price, quantity, cost, fee_currency, fee_cost, close_status, simulated, executed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		t.TradeID, t.OrderID, exchange, t.Symbol, string(t.Side), string(t.Type),
		t.Price.String(), t.Quantity.String(), t.Cost.String(),
		feeCurrency, feeCost, string(t.CloseStatus), t.Simulated, t.Time.UTC())
	return err
}

// ListTrades returns the newest trades of one exchange.
func (r *RunDatabases) ListTrades(ctx context.Context, exchange string, limit int) ([]*domain.Trade, error) {
	query := `SELECT trade_id, order_id, symbol, side, type, price, quantity, cost,
				fee_currency, fee_cost, close_status, simulated, executed_at
			  FROM trades WHERE exchange = ? ORDER BY executed_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, kind, closeStatus string
		var price, qty, cost, feeCurrency, feeCost string
		if err := rows.Scan(&t.TradeID, &t.OrderID, &t.Symbol, &side, &kind,
			&price, &qty, &cost, &feeCurrency, &feeCost, &closeStatus, &t.Simulated, &t.Time); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.Type = domain.TraderOrderType(kind)
		t.CloseStatus = domain.OrderStatus(closeStatus)
		t.Price = mustDecimal(price)
		t.Quantity = mustDecimal(qty)
		t.Cost = mustDecimal(cost)
		if feeCurrency != "" {
			t.Fee = &domain.Fee{Currency: feeCurrency, Cost: mustDecimal(feeCost)}
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// SaveTransaction records a portfolio movement (fee, funding payment,
// realised pnl, deposit).
func (r *RunDatabases) SaveTransaction(ctx context.Context, exchange, kind, asset string, amount decimal.Decimal, reference string) error {
	query := `INSERT INTO transactions (exchange, kind, asset, amount, reference, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		exchange, kind, asset, amount.String(), reference, time.Now().UTC())
	return err
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
