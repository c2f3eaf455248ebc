package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/goperp/internal/domain"
)

var log = logrus.WithField("component", "ledger")

// Ledger sqlite 成交流水账本。append-only：只写入下单请求与结果，
// 不追踪后续成交状态变化（那是交易所侧状态，每次实时查询）。
// 写入失败只记日志，绝不影响交易路径。
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS order_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at     TEXT    NOT NULL,
	platform       TEXT    NOT NULL,
	symbol         TEXT    NOT NULL,
	side           TEXT,
	order_type     TEXT,
	size           REAL,
	price          REAL,
	reduce_only    INTEGER NOT NULL DEFAULT 0,
	close_position INTEGER NOT NULL DEFAULT 0,
	success        INTEGER NOT NULL,
	order_id       TEXT,
	status         TEXT,
	filled_size    REAL,
	avg_fill_price REAL,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_order_log_platform_symbol ON order_log(platform, symbol);
`

// Open 打开（或创建）账本数据库
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开账本失败: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化账本表失败: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close 关闭数据库
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordOrder 记录一次下单请求及其结果（实现 services.TradeRecorder）
func (l *Ledger) RecordOrder(ctx context.Context, req *domain.FuturesOrderRequest, result *domain.FuturesOrderResult) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO order_log (
			created_at, platform, symbol, side, order_type, size, price,
			reduce_only, close_position, success, order_id, status,
			filled_size, avg_fill_price, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(req.Platform), req.Symbol, string(req.Side), string(req.OrderType),
		req.Size, req.Price, boolToInt(req.ReduceOnly), boolToInt(req.ClosePosition),
		boolToInt(result.Success), result.OrderID, string(result.Status),
		result.FilledSize, result.AvgFillPrice, result.Error,
	)
	if err != nil {
		log.Warnf("⚠️ 账本写入失败: platform=%s symbol=%s err=%v", req.Platform, req.Symbol, err)
	}
}

// Entry 账本条目
type Entry struct {
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Platform      string    `json:"platform"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side,omitempty"`
	OrderType     string    `json:"orderType,omitempty"`
	Size          float64   `json:"size"`
	Price         float64   `json:"price"`
	ReduceOnly    bool      `json:"reduceOnly"`
	ClosePosition bool      `json:"closePosition"`
	Success       bool      `json:"success"`
	OrderID       string    `json:"orderId,omitempty"`
	Status        string    `json:"status,omitempty"`
	FilledSize    float64   `json:"filledSize"`
	AvgFillPrice  float64   `json:"avgFillPrice"`
	Error         string    `json:"error,omitempty"`
}

// Recent 返回最近 limit 条流水（倒序）
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, platform, symbol, side, order_type, size, price,
		       reduce_only, close_position, success, order_id, status,
		       filled_size, avg_fill_price, error
		FROM order_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询账本失败: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		var reduceOnly, closePosition, success int
		if err := rows.Scan(
			&e.ID, &createdAt, &e.Platform, &e.Symbol, &e.Side, &e.OrderType,
			&e.Size, &e.Price, &reduceOnly, &closePosition, &success,
			&e.OrderID, &e.Status, &e.FilledSize, &e.AvgFillPrice, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("扫描账本行失败: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		e.ReduceOnly = reduceOnly != 0
		e.ClosePosition = closePosition != 0
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
