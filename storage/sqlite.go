package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"macross/backtest"
)

// SQLiteStorage SQLite K线缓存
type SQLiteStorage struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// SeriesInfo 缓存中一组K线的概况
type SeriesInfo struct {
	Source   string    `json:"source"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Bars     int       `json:"bars"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
}

// Stats 缓存统计
type Stats struct {
	Series int   `json:"series"`
	Bars   int64 `json:"bars"`
}

// NewSQLiteStorage 打开（或创建）K线缓存
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}

	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 并发限制
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	barsSQL := `
	CREATE TABLE IF NOT EXISTS bars (
		source TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		ts INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (source, symbol, interval, ts)
	);`
	_, err := db.Exec(barsSQL)
	return err
}

// SaveBars 写入K线，相同时间戳覆盖
func (s *SQLiteStorage) SaveBars(source, symbol, interval string, bars backtest.PriceSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("存储已关闭")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO bars
		(source, symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(source, symbol, interval, b.Timestamp.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入K线失败: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// LoadBars 读取 [start, end) 内的K线，按时间升序；start/end 为零值表示不限
func (s *SQLiteStorage) LoadBars(source, symbol, interval string, start, end time.Time) (backtest.PriceSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("存储已关闭")
	}

	from := int64(-1 << 62)
	to := int64(1 << 62)
	if !start.IsZero() {
		from = start.UnixMilli()
	}
	if !end.IsZero() {
		to = end.UnixMilli()
	}

	rows, err := s.db.Query(`SELECT ts, open, high, low, close, volume FROM bars
		WHERE source = ? AND symbol = ? AND interval = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`, source, symbol, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("查询K线失败: %w", err)
	}
	defer rows.Close()

	var series backtest.PriceSeries
	for rows.Next() {
		var ts int64
		var b backtest.Bar
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("读取K线失败: %w", err)
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		series = append(series, b)
	}
	return series, rows.Err()
}

// ListSeries 列出缓存中的K线组
func (s *SQLiteStorage) ListSeries() ([]SeriesInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("存储已关闭")
	}

	rows, err := s.db.Query(`SELECT source, symbol, interval, COUNT(*), MIN(ts), MAX(ts)
		FROM bars GROUP BY source, symbol, interval ORDER BY source, symbol, interval`)
	if err != nil {
		return nil, fmt.Errorf("查询缓存列表失败: %w", err)
	}
	defer rows.Close()

	var list []SeriesInfo
	for rows.Next() {
		var info SeriesInfo
		var first, last int64
		if err := rows.Scan(&info.Source, &info.Symbol, &info.Interval, &info.Bars, &first, &last); err != nil {
			return nil, fmt.Errorf("读取缓存列表失败: %w", err)
		}
		info.First = time.UnixMilli(first).UTC()
		info.Last = time.UnixMilli(last).UTC()
		list = append(list, info)
	}
	return list, rows.Err()
}

// DeleteSeries 删除一组K线，返回删除行数
func (s *SQLiteStorage) DeleteSeries(source, symbol, interval string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("存储已关闭")
	}
	res, err := s.db.Exec(`DELETE FROM bars WHERE source = ? AND symbol = ? AND interval = ?`, source, symbol, interval)
	if err != nil {
		return 0, fmt.Errorf("删除K线失败: %w", err)
	}
	return res.RowsAffected()
}

// Clear 清空缓存
func (s *SQLiteStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("存储已关闭")
	}
	if _, err := s.db.Exec(`DELETE FROM bars`); err != nil {
		return fmt.Errorf("清空缓存失败: %w", err)
	}
	return nil
}

// Stats 缓存统计
func (s *SQLiteStorage) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	if s.closed {
		return st, fmt.Errorf("存储已关闭")
	}
	err := s.db.QueryRow(`SELECT COUNT(*) FROM (SELECT 1 FROM bars GROUP BY source, symbol, interval)`).Scan(&st.Series)
	if err != nil {
		return st, fmt.Errorf("统计缓存失败: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bars`).Scan(&st.Bars); err != nil {
		return st, fmt.Errorf("统计缓存失败: %w", err)
	}
	return st, nil
}

// Close 关闭存储
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
