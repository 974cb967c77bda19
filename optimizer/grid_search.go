package optimizer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"macross/backtest"
	"macross/cache"
	"macross/logger"
	"macross/metrics"
)

// Result 单组参数的评估结果
type Result struct {
	Rank         int     `json:"rank"`
	Index        int     `json:"index"` // 在网格中的位置
	ShortWindow  int     `json:"short_window"`
	LongWindow   int     `json:"long_window"`
	FinalBalance float64 `json:"final_balance"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TradeCount   int     `json:"trade_count"`
	WinRate      float64 `json:"win_rate"`
	Score        float64 `json:"score"`
	Cached       bool    `json:"cached,omitempty"`
}

// Options 搜索选项
type Options struct {
	Workers int // <=0 时使用 CPU 核数
	TopN    int // <=0 时保留全部

	// Cache 为 nil 时不使用缓存
	Cache cache.ResultCache

	// OnResult 每完成一组参数回调一次，调用是串行的
	OnResult func(done, total int, r Result)
}

// Summary 搜索汇总
type Summary struct {
	Base      backtest.Params `json:"base"`
	Total     int             `json:"total"`
	Evaluated int             `json:"evaluated"`
	Skipped   int             `json:"skipped"`
	CacheHits int             `json:"cache_hits"`
	Duration  time.Duration   `json:"duration"`
	Best      *Result         `json:"best,omitempty"`
	Results   []Result        `json:"results"` // 按评分降序
}

// Params 按结果还原完整参数
func (s *Summary) Params(r Result) backtest.Params {
	p := s.Base
	p.ShortWindow = r.ShortWindow
	p.LongWindow = r.LongWindow
	return p
}

type candidate struct {
	index  int
	params backtest.Params
}

// GridSearch 在 (short, long) 网格上并发回测并按评分排序
// 非法组合（short >= long 等）计入 Skipped；评分相同时保持网格顺序
func GridSearch(ctx context.Context, series backtest.PriceSeries, base backtest.Params, grid [][2]int, opts Options) (*Summary, error) {
	startTime := time.Now()

	if err := series.Validate(); err != nil {
		return nil, err
	}

	summary := &Summary{Base: base, Total: len(grid)}
	var candidates []candidate
	for _, pair := range grid {
		p := base
		p.ShortWindow, p.LongWindow = pair[0], pair[1]
		if err := p.Validate(); err != nil {
			summary.Skipped++
			continue
		}
		candidates = append(candidates, candidate{index: len(candidates), params: p})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("没有有效的参数组合 (共 %d 组)", len(grid))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger.Info("🔍 开始网格搜索: %d 组参数, %d 个并发, %d 根K线", len(candidates), workers, len(series))

	pm := metrics.GetPrometheusMetrics()
	results := make([]Result, len(candidates))
	errs := make([]error, len(candidates))
	semaphore := make(chan struct{}, workers)

	var (
		wg       sync.WaitGroup
		progress sync.Mutex
		done     int
	)

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errs[c.index] = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			r, err := evaluate(ctx, series, c, opts.Cache, pm)
			if err != nil {
				errs[c.index] = err
				return
			}
			results[c.index] = r

			progress.Lock()
			done++
			if opts.OnResult != nil {
				opts.OnResult(done, len(candidates), r)
			}
			logger.Debug("short=%2d, long=%3d -> score=%.2f", r.ShortWindow, r.LongWindow, r.Score)
			progress.Unlock()
		}(c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("网格搜索被取消: %w", err)
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for _, r := range results {
		if r.Cached {
			summary.CacheHits++
		}
	}
	summary.Evaluated = len(results)

	// 稳定排序，评分相同保持网格顺序
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	if opts.TopN > 0 && len(results) > opts.TopN {
		results = results[:opts.TopN]
	}
	summary.Results = results
	best := results[0]
	summary.Best = &best
	summary.Duration = time.Since(startTime)

	pm.SetSweepBestScore(best.Score)
	logger.Info("✅ 网格搜索完成: 最佳 short=%d long=%d score=%.2f (缓存命中 %d, 耗时 %v)",
		best.ShortWindow, best.LongWindow, best.Score, summary.CacheHits, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// evaluate 评估一组参数，优先读取缓存
func evaluate(ctx context.Context, series backtest.PriceSeries, c candidate, rc cache.ResultCache, pm *metrics.PrometheusMetrics) (Result, error) {
	r := Result{
		Index:       c.index,
		ShortWindow: c.params.ShortWindow,
		LongWindow:  c.params.LongWindow,
	}

	var key string
	if rc != nil {
		key = cache.Key(series, c.params)
		entry, ok, err := rc.Get(ctx, key)
		switch {
		case err != nil:
			pm.RecordCacheLookup("error")
			logger.Warn("⚠️ 读取评分缓存失败: %v", err)
		case ok:
			pm.RecordCacheLookup("hit")
			pm.RecordSweepEvaluation(true)
			fillFromEntry(&r, entry)
			r.Cached = true
			return r, nil
		default:
			pm.RecordCacheLookup("miss")
		}
	}

	result, err := backtest.Run(series, c.params)
	if err != nil {
		var cfgErr *backtest.ConfigurationError
		if errors.As(err, &cfgErr) {
			return r, fmt.Errorf("参数 %s 无效: %w", c.params, err)
		}
		return r, err
	}
	pm.RecordSweepEvaluation(false)
	entry := cache.NewEntry(result)
	fillFromEntry(&r, entry)

	if rc != nil {
		if err := rc.Set(ctx, key, entry); err != nil {
			logger.Warn("⚠️ 写入评分缓存失败: %v", err)
		}
	}
	return r, nil
}

func fillFromEntry(r *Result, e cache.Entry) {
	r.FinalBalance = e.FinalBalance
	r.MaxDrawdown = e.MaxDrawdown
	r.TradeCount = e.TradeCount
	r.WinRate = e.WinRate
	r.Score = e.Score
}
