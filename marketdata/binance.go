package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"macross/backtest"
)

// binanceKlineLimit 单次请求的最大K线数
const binanceKlineLimit = 1000

// rawKline 现货与合约K线的公共字段
type rawKline struct {
	OpenTime                       int64
	Open, High, Low, Close, Volume string
}

// BinanceFetcher Binance K线数据源
type BinanceFetcher struct {
	spot    *binance.Client
	futures *futures.Client
	limiter *rate.Limiter
}

// NewBinanceFetcher 创建 Binance 数据源，useFutures 为 true 时读取 U 本位合约K线
func NewBinanceFetcher(apiKey, secretKey string, useFutures bool, rps float64) *BinanceFetcher {
	if rps <= 0 {
		rps = 5
	}
	f := &BinanceFetcher{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
	if useFutures {
		f.futures = futures.NewClient(apiKey, secretKey)
	} else {
		f.spot = binance.NewClient(apiKey, secretKey)
	}
	return f
}

// SetBaseURL 替换接口地址（测试或代理使用）
func (b *BinanceFetcher) SetBaseURL(baseURL string) {
	if b.spot != nil {
		b.spot.BaseURL = baseURL
	}
	if b.futures != nil {
		b.futures.BaseURL = baseURL
	}
}

// Name 数据源名称
func (b *BinanceFetcher) Name() string {
	if b.futures != nil {
		return "binance-futures"
	}
	return "binance"
}

// Fetch 分批拉取区间内的K线
func (b *BinanceFetcher) Fetch(ctx context.Context, req Request) (backtest.PriceSeries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var series backtest.PriceSeries
	start := req.Start.UnixMilli()
	end := req.End.UnixMilli() - 1

	for start <= end {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		klines, err := b.klines(ctx, req.Symbol, req.Interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("获取历史K线失败: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bar, ok := toBar(k)
			if ok {
				series = append(series, bar)
			}
		}

		next := klines[len(klines)-1].OpenTime + 1
		if len(klines) < binanceKlineLimit || next <= start {
			break
		}
		start = next
	}
	return series, nil
}

func (b *BinanceFetcher) klines(ctx context.Context, symbol, interval string, start, end int64) ([]rawKline, error) {
	if b.futures != nil {
		ks, err := b.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(start).
			EndTime(end).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]rawKline, len(ks))
		for i, k := range ks {
			out[i] = rawKline{k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume}
		}
		return out, nil
	}

	ks, err := b.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start).
		EndTime(end).
		Limit(binanceKlineLimit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rawKline, len(ks))
	for i, k := range ks {
		out[i] = rawKline{k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume}
	}
	return out, nil
}

func toBar(k rawKline) (backtest.Bar, bool) {
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil || !(closePrice > 0) {
		return backtest.Bar{}, false
	}
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	volume, _ := strconv.ParseFloat(k.Volume, 64)
	return backtest.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, true
}
