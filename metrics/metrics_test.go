package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"macross/backtest"
)

func TestMetricsCollectorRecordRun(t *testing.T) {
	mc := NewMetricsCollector()
	before := testutil.ToFloat64(runTotal.WithLabelValues("test", "ok"))

	result := &backtest.BacktestResult{
		Params:       backtest.DefaultParams(),
		FinalBalance: 10012.5,
		MaxDrawdown:  -0.002,
		TradeCount:   3,
		Score:        9992.5,
	}
	mc.RecordRun("test", result, 20*time.Millisecond)
	mc.RecordRun("test", nil, time.Millisecond)

	if got := testutil.ToFloat64(runTotal.WithLabelValues("test", "ok")); got != before+1 {
		t.Errorf("成功次数: 期望 %v, 得到 %v", before+1, got)
	}
	if got := testutil.ToFloat64(lastFinalBalance.WithLabelValues("test")); got != 10012.5 {
		t.Errorf("最终余额: 期望 10012.5, 得到 %v", got)
	}

	st := mc.GetStats()
	if st.Runs != 2 || st.Failures != 1 || st.LastScore != 9992.5 {
		t.Errorf("统计不符: %+v", st)
	}
	if st.LastParams != result.Params.String() {
		t.Errorf("参数: 期望 %s, 得到 %s", result.Params.String(), st.LastParams)
	}
}

func TestRecordSweepEvaluation(t *testing.T) {
	pm := GetPrometheusMetrics()
	before := testutil.ToFloat64(sweepEvaluations.WithLabelValues("cache"))
	pm.RecordSweepEvaluation(true)
	pm.RecordSweepEvaluation(false)
	if got := testutil.ToFloat64(sweepEvaluations.WithLabelValues("cache")); got != before+1 {
		t.Errorf("缓存命中次数: 期望 %v, 得到 %v", before+1, got)
	}
}

func TestCollectSystemMetrics(t *testing.T) {
	sm, err := CollectSystemMetrics()
	if err != nil {
		t.Skipf("当前环境无法采集系统指标: %v", err)
	}
	if sm.MemoryMB <= 0 || sm.Goroutines <= 0 {
		t.Errorf("指标不合理: %+v", sm)
	}
}
