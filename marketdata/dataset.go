package marketdata

import (
	"context"
	"time"

	"macross/backtest"
	"macross/config"
	"macross/logger"
)

// Dataset 整理好的K线及其来源
type Dataset struct {
	Source   string
	Symbol   string
	Interval string
	Series   backtest.PriceSeries
}

// LoadDataset 按配置加载K线：csv 读本地文件，其余数据源走远程拉取（带缓存）
func LoadDataset(ctx context.Context, cfg *config.Config, cache BarCache, now time.Time) (*Dataset, error) {
	ds := &Dataset{
		Source:   cfg.Data.Source,
		Symbol:   cfg.Data.Symbol,
		Interval: cfg.Data.Interval,
	}

	if cfg.Data.Source == "csv" {
		series, stats, err := LoadCSV(cfg.Data.CSVPath)
		if err != nil {
			return nil, err
		}
		if stats.Dropped > 0 || stats.Duplicates > 0 {
			logger.Debug("CSV 丢弃 %d 行, 重复 %d 行", stats.Dropped, stats.Duplicates)
		}
		logger.Info("📂 读取 %s: %d 根K线", cfg.Data.CSVPath, len(series))
		ds.Series = series
		return ds, nil
	}

	fetcher, err := NewFetcher(cfg.Data.Source, cfg.Data.Binance.APIKey, cfg.Data.Binance.SecretKey, cfg.Data.RequestsPerSecond)
	if err != nil {
		return nil, err
	}
	req := RecentRequest(cfg.Data.Symbol, cfg.Data.Interval, cfg.Data.Days, now)
	series, err := GetHistoricalData(ctx, fetcher, cache, req)
	if err != nil {
		return nil, err
	}
	ds.Series = series
	return ds, nil
}
