package execution

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/predictbot/gopredict/internal/domain"
)

// OrderStore 订单归档（sqlite）。
// 内存 map 才是运行时真相，归档用于重启后审计与敞口恢复。
type OrderStore struct {
	db *sql.DB
}

// OpenOrderStore 打开（必要时创建）归档库
func OpenOrderStore(path string) (*OrderStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &OrderStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *OrderStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS orders (
  order_id TEXT PRIMARY KEY,
  gateway_id TEXT NOT NULL,
  market_id TEXT NOT NULL,
  side TEXT NOT NULL,
  amount REAL NOT NULL,
  price_pips INTEGER NOT NULL,
  order_type TEXT NOT NULL,
  status TEXT NOT NULL,
  filled_amount REAL NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_market ON orders(market_id);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert 写入新记录
func (s *OrderStore) Insert(ctx context.Context, r *domain.OrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO orders (order_id,gateway_id,market_id,side,amount,price_pips,order_type,status,filled_amount,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`, r.OrderID, r.GatewayID, r.Order.MarketID, string(r.Order.Side), r.Order.Amount,
		r.Order.Price.Pips, string(r.Order.OrderType), string(r.Status), r.FilledAmount,
		r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// UpdateStatus 同步状态与成交金额
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, filled float64, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE orders SET status=?, filled_amount=?, updated_at=? WHERE order_id=?
`, string(status), filled, updatedAt.Format(time.RFC3339Nano), orderID)
	return err
}

// Get 读取单条记录；不存在返回 (nil, nil)
func (s *OrderStore) Get(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT order_id,gateway_id,market_id,side,amount,price_pips,order_type,status,filled_amount,created_at,updated_at
FROM orders WHERE order_id=?
`, orderID)
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ListOpen 列出全部未终态订单（重启恢复敞口用）
func (s *OrderStore) ListOpen(ctx context.Context) ([]*domain.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT order_id,gateway_id,market_id,side,amount,price_pips,order_type,status,filled_amount,created_at,updated_at
FROM orders WHERE status IN ('pending','partially_filled') ORDER BY created_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.OrderRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(scan func(...interface{}) error) (*domain.OrderRecord, error) {
	var r domain.OrderRecord
	var side, orderType, status, created, updated string
	if err := scan(&r.OrderID, &r.GatewayID, &r.Order.MarketID, &side, &r.Order.Amount,
		&r.Order.Price.Pips, &orderType, &status, &r.FilledAmount, &created, &updated); err != nil {
		return nil, err
	}
	r.Order.Side = domain.Side(side)
	r.Order.OrderType = domain.OrderType(orderType)
	r.Status = domain.OrderStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &r, nil
}

// Close 关闭归档库
func (s *OrderStore) Close() error {
	return s.db.Close()
}
