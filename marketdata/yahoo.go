package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"macross/backtest"
)

// DefaultYahooBaseURL Yahoo Finance chart 接口
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// yahooIntradaySpan 分钟级数据单次请求的最大跨度
const yahooIntradaySpan = 59 * 24 * time.Hour

// YahooFetcher Yahoo Finance K线数据源（如 USDJPY=X）
type YahooFetcher struct {
	BaseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewYahooFetcher 创建 Yahoo 数据源，rps 为每秒请求数
func NewYahooFetcher(client *http.Client, rps float64) *YahooFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if rps <= 0 {
		rps = 2
	}
	return &YahooFetcher{
		BaseURL: DefaultYahooBaseURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name 数据源名称
func (y *YahooFetcher) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch 拉取区间内的K线，分钟级数据按接口限制分段请求
func (y *YahooFetcher) Fetch(ctx context.Context, req Request) (backtest.PriceSeries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	step, _ := ParseInterval(req.Interval)

	span := req.End.Sub(req.Start)
	if step < 24*time.Hour && span > yahooIntradaySpan {
		span = yahooIntradaySpan
	}

	var series backtest.PriceSeries
	for start := req.Start; start.Before(req.End); start = start.Add(span) {
		end := start.Add(span)
		if end.After(req.End) {
			end = req.End
		}
		chunk, err := y.fetchChunk(ctx, req.Symbol, req.Interval, start, end)
		if err != nil {
			return nil, err
		}
		series = append(series, chunk...)
	}
	return series, nil
}

func (y *YahooFetcher) fetchChunk(ctx context.Context, symbol, interval string, start, end time.Time) (backtest.PriceSeries, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("interval", interval)
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(end.Unix()))
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.BaseURL, url.PathEscape(symbol), q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (macross)")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 Yahoo 失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("读取 Yahoo 响应失败: %w", err)
	}

	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("Yahoo 返回 HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("解析 Yahoo 响应失败: %w", err)
	}
	if e := parsed.Chart.Error; e != nil {
		return nil, fmt.Errorf("Yahoo 错误 %s: %s", e.Code, e.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Yahoo 返回 HTTP %d", resp.StatusCode)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	series := make(backtest.PriceSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePrice, ok := at(quote.Close, i)
		if !ok || !(closePrice > 0) {
			// 休市或未成交的K线收盘价为 null
			continue
		}
		bar := backtest.Bar{Timestamp: time.Unix(ts, 0).UTC(), Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice}
		if v, ok := at(quote.Open, i); ok {
			bar.Open = v
		}
		if v, ok := at(quote.High, i); ok {
			bar.High = v
		}
		if v, ok := at(quote.Low, i); ok {
			bar.Low = v
		}
		if v, ok := at(quote.Volume, i); ok {
			bar.Volume = v
		}
		series = append(series, bar)
	}
	return series, nil
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}
