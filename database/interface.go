package database

import (
	"context"
	"time"
)

// Database 回测记录库接口
type Database interface {
	// 回测记录
	SaveRun(ctx context.Context, run *BacktestRun) error
	GetRun(ctx context.Context, id uint) (*BacktestRun, error)
	ListRuns(ctx context.Context, filter *RunFilter) ([]*BacktestRun, error)
	GetTrades(ctx context.Context, runID uint) ([]*TradeRecord, error)
	DeleteRun(ctx context.Context, id uint) error

	// 参数搜索记录
	SaveSearch(ctx context.Context, search *SearchRecord) error
	GetSearch(ctx context.Context, id uint) (*SearchRecord, error)

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// BacktestRun 一次回测
type BacktestRun struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	Mode      string    `gorm:"index;size:20" json:"mode"` // report, watch, api
	Source    string    `gorm:"size:30" json:"source"`
	Symbol    string    `gorm:"index;size:50" json:"symbol"`
	Interval  string    `gorm:"size:10" json:"interval"`

	ShortWindow    int     `gorm:"index:idx_windows" json:"short_window"`
	LongWindow     int     `gorm:"index:idx_windows" json:"long_window"`
	InitialCapital float64 `json:"initial_capital"`
	FeeRate        float64 `json:"fee_rate"`
	TradeSize      float64 `json:"trade_size"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Bars      int       `json:"bars"`

	FinalBalance     float64 `json:"final_balance"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	TradeCount       int     `json:"trade_count"`
	WinRate          float64 `json:"win_rate"`
	Score            float64 `gorm:"index" json:"score"`
	TotalReturn      float64 `json:"total_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	InsufficientData bool    `json:"insufficient_data"`

	Trades []TradeRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"trades,omitempty"`
}

// TradeRecord 一次开平仓
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       uint      `gorm:"index" json:"run_id"`
	Seq         int       `json:"seq"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Size        float64   `json:"size"`
	Fee         float64   `json:"fee"`
	PnL         float64   `json:"pnl"`
	EquityAfter float64   `json:"equity_after"`
	Forced      bool      `json:"forced"`
}

// SearchRecord 一次参数搜索
type SearchRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	Source     string    `gorm:"size:30" json:"source"`
	Symbol     string    `gorm:"size:50" json:"symbol"`
	Interval   string    `gorm:"size:10" json:"interval"`
	Bars       int       `json:"bars"`
	Evaluated  int       `json:"evaluated"`
	Skipped    int       `json:"skipped"`
	CacheHits  int       `json:"cache_hits"`
	DurationMs int64     `json:"duration_ms"`
	BestShort  int       `json:"best_short"`
	BestLong   int       `json:"best_long"`
	BestScore  float64   `json:"best_score"`

	Results []SearchResultRecord `gorm:"foreignKey:SearchID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
}

// SearchResultRecord 搜索中的一组参数
type SearchResultRecord struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	SearchID     uint    `gorm:"index" json:"search_id"`
	Rank         int     `gorm:"column:result_rank" json:"rank"`
	ShortWindow  int     `json:"short_window"`
	LongWindow   int     `json:"long_window"`
	FinalBalance float64 `json:"final_balance"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TradeCount   int     `json:"trade_count"`
	WinRate      float64 `json:"win_rate"`
	Score        float64 `json:"score"`
}

// RunFilter 回测记录查询条件
type RunFilter struct {
	Mode   string
	Symbol string
	Since  *time.Time
	Limit  int
	Offset int
}
