package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"macross/backtest"
	"macross/logger"
	"macross/metrics"
)

// Request 历史K线请求，时间区间为 [Start, End)
type Request struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
}

// Validate 检查请求
func (r Request) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("交易对不能为空")
	}
	if _, err := ParseInterval(r.Interval); err != nil {
		return err
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("开始时间必须早于结束时间: %s >= %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// RecentRequest 最近 days 天的请求
func RecentRequest(symbol, interval string, days int, now time.Time) Request {
	return Request{
		Symbol:   symbol,
		Interval: interval,
		Start:    now.Add(-time.Duration(days) * 24 * time.Hour),
		End:      now,
	}
}

// Fetcher 历史K线数据源
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) (backtest.PriceSeries, error)
}

// BarCache K线缓存，由 storage 包实现
type BarCache interface {
	LoadBars(source, symbol, interval string, start, end time.Time) (backtest.PriceSeries, error)
	SaveBars(source, symbol, interval string, bars backtest.PriceSeries) error
}

// ParseInterval 解析 1m/5m/15m/1h/1d 这类周期
func ParseInterval(interval string) (time.Duration, error) {
	s := strings.TrimSpace(interval)
	if len(s) < 2 {
		return 0, fmt.Errorf("无效的K线周期: %q", interval)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("无效的K线周期: %q", interval)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("无效的K线周期: %q", interval)
	}
}

// GetHistoricalData 获取历史数据，优先读取缓存
// 缓存覆盖请求区间（首尾各允许一个周期的缺口）时直接返回，否则拉取后写回缓存
func GetHistoricalData(ctx context.Context, fetcher Fetcher, cache BarCache, req Request) (backtest.PriceSeries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	step, _ := ParseInterval(req.Interval)

	if cache != nil {
		cached, err := cache.LoadBars(fetcher.Name(), req.Symbol, req.Interval, req.Start, req.End)
		if err != nil {
			logger.Warn("⚠️ 读取K线缓存失败: %v", err)
		} else if covers(cached, req, step) {
			logger.Info("✅ 从缓存加载 %d 根K线: %s %s", len(cached), req.Symbol, req.Interval)
			return cached, nil
		}
	}

	logger.Info("📥 从 %s 拉取K线: %s %s %s ~ %s", fetcher.Name(), req.Symbol, req.Interval,
		req.Start.Format("2006-01-02 15:04"), req.End.Format("2006-01-02 15:04"))
	series, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("拉取K线失败: %w", err)
	}
	metrics.GetPrometheusMetrics().RecordBarsFetched(fetcher.Name(), len(series))
	series, dup := Normalize(series)
	if dup > 0 {
		logger.Debug("去除重复K线 %d 根", dup)
	}
	if len(series) == 0 {
		return nil, ErrNoData
	}

	if cache != nil {
		if err := cache.SaveBars(fetcher.Name(), req.Symbol, req.Interval, series); err != nil {
			logger.Warn("⚠️ 写入K线缓存失败: %v", err)
		}
	}
	logger.Info("✅ 拉取完成: %d 根K线", len(series))
	return series, nil
}

// covers 缓存是否覆盖请求区间
func covers(cached backtest.PriceSeries, req Request, step time.Duration) bool {
	if len(cached) == 0 {
		return false
	}
	first := cached[0].Timestamp
	last := cached[len(cached)-1].Timestamp
	return !first.After(req.Start.Add(step)) && !last.Before(req.End.Add(-2*step))
}

// NewFetcher 按数据源名称创建 Fetcher
func NewFetcher(source, apiKey, secretKey string, rps float64) (Fetcher, error) {
	switch strings.ToLower(source) {
	case "yahoo":
		return NewYahooFetcher(nil, rps), nil
	case "binance":
		return NewBinanceFetcher(apiKey, secretKey, false, rps), nil
	case "binance-futures":
		return NewBinanceFetcher(apiKey, secretKey, true, rps), nil
	default:
		return nil, fmt.Errorf("不支持的远程数据源: %s", source)
	}
}
