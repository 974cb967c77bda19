package backtest

import (
	"errors"
	"fmt"
	"time"
)

// Bar K线
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries 按时间严格递增的K线序列，回测期间只读
type PriceSeries []Bar

// Closes 收盘价序列
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, bar := range s {
		closes[i] = bar.Close
	}
	return closes
}

// Validate 检查时间严格递增且收盘价为正
func (s PriceSeries) Validate() error {
	for i, bar := range s {
		if !(bar.Close > 0) {
			return &SeriesError{Index: i, Reason: fmt.Sprintf("close must be positive, got %v", bar.Close)}
		}
		if i > 0 && !bar.Timestamp.After(s[i-1].Timestamp) {
			return &SeriesError{Index: i, Reason: "timestamps must be strictly increasing"}
		}
	}
	return nil
}

// Params 策略参数
type Params struct {
	ShortWindow    int     `json:"short_window" yaml:"short_window"`
	LongWindow     int     `json:"long_window" yaml:"long_window"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	FeeRate        float64 `json:"fee_rate" yaml:"fee_rate"`     // 单边手续费率
	TradeSize      float64 `json:"trade_size" yaml:"trade_size"` // 每笔固定数量
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{
		ShortWindow:    20,
		LongWindow:     60,
		InitialCapital: 10000,
		FeeRate:        0.00002,
		TradeSize:      1,
	}
}

// Validate 校验参数
func (p Params) Validate() error {
	if err := validateWindows(p.ShortWindow, p.LongWindow); err != nil {
		return err
	}
	if !(p.InitialCapital > 0) {
		return &ConfigurationError{Field: "initial_capital", Reason: "must be positive"}
	}
	if !(p.TradeSize > 0) {
		return &ConfigurationError{Field: "trade_size", Reason: "must be positive"}
	}
	if !(p.FeeRate >= 0) {
		return &ConfigurationError{Field: "fee_rate", Reason: "must not be negative"}
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("short=%d long=%d capital=%.2f fee=%g size=%g",
		p.ShortWindow, p.LongWindow, p.InitialCapital, p.FeeRate, p.TradeSize)
}

var (
	// ErrConfiguration 参数错误，可用 errors.Is 判断
	ErrConfiguration = errors.New("backtest: invalid configuration")
	// ErrInsufficientData 数据不足一个长周期窗口
	// Run 不返回该错误，而是返回零交易结果并设置 BacktestResult.InsufficientData
	ErrInsufficientData = errors.New("backtest: insufficient data")
	// ErrInvalidSeries K线序列不满足时间递增或收盘价为正
	ErrInvalidSeries = errors.New("backtest: invalid price series")
)

// ConfigurationError 参数错误
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("backtest: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SeriesError K线序列错误
type SeriesError struct {
	Index  int
	Reason string
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("backtest: invalid bar at index %d: %s", e.Index, e.Reason)
}

func (e *SeriesError) Is(target error) bool { return target == ErrInvalidSeries }

// Side 成交方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill 成交记录
type Fill struct {
	Timestamp time.Time `json:"timestamp"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Fee       float64   `json:"fee"`
	Forced    bool      `json:"forced,omitempty"` // 序列结束时强制平仓
}

// Notional 成交额
func (f Fill) Notional() float64 { return f.Price * f.Size }

// RoundTrip 一次完整的开平仓
type RoundTrip struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	EntryFee   float64   `json:"entry_fee"`
	ExitFee    float64   `json:"exit_fee"`
	PnL        float64   `json:"pnl"`
	Forced     bool      `json:"forced,omitempty"`
}

// EquityPoint 权益点
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestResult 回测结果
type BacktestResult struct {
	Params    Params    `json:"params"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Bars      int       `json:"bars"`

	FinalBalance float64 `json:"final_balance"`
	MaxDrawdown  float64 `json:"max_drawdown"` // <= 0，比例
	TradeCount   int     `json:"trade_count"`
	WinRate      float64 `json:"win_rate"` // 比例 0~1
	Score        float64 `json:"score"`

	// InsufficientData 为 true 表示K线数不足 LongWindow，未产生任何信号
	InsufficientData bool `json:"insufficient_data"`

	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []RoundTrip   `json:"trades"`
	Fills       []Fill        `json:"fills"`

	Metrics     Metrics     `json:"metrics"`
	RiskMetrics RiskMetrics `json:"risk_metrics"`
}

// EquityValues 权益数值序列
func (r *BacktestResult) EquityValues() []float64 {
	values := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		values[i] = p.Equity
	}
	return values
}
