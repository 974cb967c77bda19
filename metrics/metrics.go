package metrics

import (
	"sync"
	"time"

	"macross/backtest"
)

// RunStats 进程内的回测统计，供状态接口使用
type RunStats struct {
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	Sweeps      int64     `json:"sweeps"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastParams  string    `json:"last_params"`
	LastBalance float64   `json:"last_balance"`
	LastScore   float64   `json:"last_score"`
}

// MetricsCollector 指标收集器，同时更新 Prometheus 指标
type MetricsCollector struct {
	mu    sync.RWMutex
	stats RunStats
	pm    *PrometheusMetrics
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{pm: GetPrometheusMetrics()}
}

// RecordRun 记录一次回测，result 为 nil 表示失败
func (mc *MetricsCollector) RecordRun(mode string, result *backtest.BacktestResult, duration time.Duration) {
	status := "ok"
	if result == nil {
		status = "error"
	}
	mc.pm.RecordRun(mode, status, duration)
	mc.pm.SetLastResult(mode, result)

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.stats.Runs++
	mc.stats.LastRunAt = time.Now()
	if result == nil {
		mc.stats.Failures++
		return
	}
	mc.stats.LastParams = result.Params.String()
	mc.stats.LastBalance = result.FinalBalance
	mc.stats.LastScore = result.Score
}

// RecordSweep 记录一次参数搜索
func (mc *MetricsCollector) RecordSweep(bestScore float64) {
	mc.pm.SetSweepBestScore(bestScore)
	mc.mu.Lock()
	mc.stats.Sweeps++
	mc.mu.Unlock()
}

// GetStats 获取统计快照
func (mc *MetricsCollector) GetStats() RunStats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.stats
}
