package database

import (
	"fmt"
	"time"

	"macross/backtest"
	"macross/optimizer"
)

// Config 数据库配置
type Config struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// NewDatabase 根据配置创建数据库实例
func NewDatabase(config *Config) (Database, error) {
	dbConfig := &DBConfig{
		Type:            config.Type,
		DSN:             config.DSN,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		LogLevel:        config.LogLevel,
	}

	switch config.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
		return NewGormDatabase(dbConfig)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// RunMeta 回测的来源信息
type RunMeta struct {
	Mode     string
	Source   string
	Symbol   string
	Interval string
}

// NewBacktestRun 把回测结果转成数据库记录
func NewBacktestRun(meta RunMeta, result *backtest.BacktestResult) *BacktestRun {
	p := result.Params
	run := &BacktestRun{
		Mode:             meta.Mode,
		Source:           meta.Source,
		Symbol:           meta.Symbol,
		Interval:         meta.Interval,
		ShortWindow:      p.ShortWindow,
		LongWindow:       p.LongWindow,
		InitialCapital:   p.InitialCapital,
		FeeRate:          p.FeeRate,
		TradeSize:        p.TradeSize,
		StartTime:        result.StartTime,
		EndTime:          result.EndTime,
		Bars:             result.Bars,
		FinalBalance:     result.FinalBalance,
		MaxDrawdown:      result.MaxDrawdown,
		TradeCount:       result.TradeCount,
		WinRate:          result.WinRate,
		Score:            result.Score,
		TotalReturn:      result.Metrics.TotalReturn,
		SharpeRatio:      result.Metrics.SharpeRatio,
		InsufficientData: result.InsufficientData,
	}

	balance := p.InitialCapital
	run.Trades = make([]TradeRecord, 0, len(result.Trades))
	for i, t := range result.Trades {
		balance += t.PnL
		run.Trades = append(run.Trades, TradeRecord{
			Seq:         i + 1,
			EntryTime:   t.EntryTime,
			ExitTime:    t.ExitTime,
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			Size:        t.Size,
			Fee:         t.EntryFee + t.ExitFee,
			PnL:         t.PnL,
			EquityAfter: balance,
			Forced:      t.Forced,
		})
	}
	return run
}

// NewSearchRecord 把搜索汇总转成数据库记录
func NewSearchRecord(meta RunMeta, bars int, summary *optimizer.Summary) *SearchRecord {
	rec := &SearchRecord{
		Source:     meta.Source,
		Symbol:     meta.Symbol,
		Interval:   meta.Interval,
		Bars:       bars,
		Evaluated:  summary.Evaluated,
		Skipped:    summary.Skipped,
		CacheHits:  summary.CacheHits,
		DurationMs: summary.Duration.Milliseconds(),
	}
	if summary.Best != nil {
		rec.BestShort = summary.Best.ShortWindow
		rec.BestLong = summary.Best.LongWindow
		rec.BestScore = summary.Best.Score
	}
	for _, r := range summary.Results {
		rec.Results = append(rec.Results, SearchResultRecord{
			Rank:         r.Rank,
			ShortWindow:  r.ShortWindow,
			LongWindow:   r.LongWindow,
			FinalBalance: r.FinalBalance,
			MaxDrawdown:  r.MaxDrawdown,
			TradeCount:   r.TradeCount,
			WinRate:      r.WinRate,
			Score:        r.Score,
		})
	}
	return rec
}
