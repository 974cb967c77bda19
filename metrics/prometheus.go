package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"macross/backtest"
)

var (
	once sync.Once

	// 回测指标
	runTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_backtest_runs_total",
			Help: "Total number of backtest runs",
		},
		[]string{"mode", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "macross_backtest_run_duration_seconds",
			Help:    "Backtest run duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"mode"},
	)

	lastFinalBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "macross_backtest_last_final_balance",
			Help: "Final balance of the most recent backtest",
		},
		[]string{"mode"},
	)

	lastScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "macross_backtest_last_score",
			Help: "Score of the most recent backtest",
		},
		[]string{"mode"},
	)

	lastMaxDrawdown = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "macross_backtest_last_max_drawdown",
			Help: "Max drawdown (<= 0) of the most recent backtest",
		},
		[]string{"mode"},
	)

	lastTradeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "macross_backtest_last_trade_count",
			Help: "Trade count of the most recent backtest",
		},
		[]string{"mode"},
	)

	// 参数搜索指标
	sweepEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_sweep_evaluations_total",
			Help: "Total number of parameter combinations evaluated",
		},
		[]string{"source"}, // computed, cache
	)

	sweepBestScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_sweep_best_score",
			Help: "Best score of the most recent sweep",
		},
	)

	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_cache_requests_total",
			Help: "Result cache lookups",
		},
		[]string{"result"}, // hit, miss, error
	)

	// 行情数据指标
	barsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_bars_fetched_total",
			Help: "Total number of bars fetched from remote sources",
		},
		[]string{"source"},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_goroutines",
			Help: "Number of goroutines",
		},
	)

	memoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_memory_alloc_bytes",
			Help: "Go heap bytes allocated",
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_process_cpu_percent",
			Help: "Process CPU usage percent",
		},
	)

	processRSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_process_rss_bytes",
			Help: "Process resident set size in bytes",
		},
	)

	systemMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_process_memory_percent",
			Help: "Process RSS as percent of system memory",
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// RecordRun 记录一次回测
func (pm *PrometheusMetrics) RecordRun(mode, status string, duration time.Duration) {
	runTotal.WithLabelValues(mode, status).Inc()
	runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// SetLastResult 记录最近一次回测结果
func (pm *PrometheusMetrics) SetLastResult(mode string, result *backtest.BacktestResult) {
	if result == nil {
		return
	}
	lastFinalBalance.WithLabelValues(mode).Set(result.FinalBalance)
	lastScore.WithLabelValues(mode).Set(result.Score)
	lastMaxDrawdown.WithLabelValues(mode).Set(result.MaxDrawdown)
	lastTradeCount.WithLabelValues(mode).Set(float64(result.TradeCount))
}

// RecordSweepEvaluation 记录一组参数的评估，cached 表示来自缓存
func (pm *PrometheusMetrics) RecordSweepEvaluation(cached bool) {
	source := "computed"
	if cached {
		source = "cache"
	}
	sweepEvaluations.WithLabelValues(source).Inc()
}

// SetSweepBestScore 设置最近一次搜索的最佳评分
func (pm *PrometheusMetrics) SetSweepBestScore(score float64) {
	sweepBestScore.Set(score)
}

// RecordCacheLookup 记录缓存查询，result 为 hit/miss/error
func (pm *PrometheusMetrics) RecordCacheLookup(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

// RecordBarsFetched 记录远程拉取的K线数量
func (pm *PrometheusMetrics) RecordBarsFetched(source string, n int) {
	barsFetched.WithLabelValues(source).Add(float64(n))
}

// 系统相关指标记录

// SetGoroutineCount 设置 Goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置内存分配
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAllocBytes.Set(float64(bytes))
}

// SetProcessStats 设置进程资源占用
func (pm *PrometheusMetrics) SetProcessStats(s *SystemMetrics) {
	processCPUPercent.Set(s.CPUPercent)
	processRSSBytes.Set(s.MemoryMB * 1024 * 1024)
	systemMemoryPercent.Set(s.MemoryPercent)
}

// 全局实例
var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
