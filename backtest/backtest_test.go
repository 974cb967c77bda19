package backtest

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

const floatEps = 1e-9

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// makeSeries 按5分钟间隔生成K线
func makeSeries(closes ...float64) PriceSeries {
	series := make(PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = Bar{
			Timestamp: testStart.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return series
}

// randomWalk 生成固定种子的随机游走
func randomWalk(seed int64, n int, start float64) PriceSeries {
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, n)
	price := start
	for i := range closes {
		price *= 1 + (rng.Float64()-0.5)*0.004
		closes[i] = price
	}
	return makeSeries(closes...)
}

func testParams(short, long int) Params {
	return Params{ShortWindow: short, LongWindow: long, InitialCapital: 1000, FeeRate: 0, TradeSize: 1}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatEps
}

// TestRunFiveBarScenario 五根K线：最后一根金叉开仓并在序列结束时强制平仓
func TestRunFiveBarScenario(t *testing.T) {
	series := makeSeries(100, 101, 99, 102, 103)
	result, err := Run(series, testParams(2, 3))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if result.FinalBalance != 1000 {
		t.Errorf("最终余额: 期望 1000, 得到 %v", result.FinalBalance)
	}
	if result.TradeCount != 1 {
		t.Fatalf("交易次数: 期望 1, 得到 %d", result.TradeCount)
	}
	trade := result.Trades[0]
	if trade.PnL != 0 {
		t.Errorf("盈亏: 期望 0, 得到 %v", trade.PnL)
	}
	if trade.EntryPrice != 103 || trade.ExitPrice != 103 {
		t.Errorf("开平仓价: 期望 103/103, 得到 %v/%v", trade.EntryPrice, trade.ExitPrice)
	}
	if !trade.Forced {
		t.Error("期望最后一笔交易为强制平仓")
	}
	if result.WinRate != 0 {
		t.Errorf("胜率: 期望 0（盈亏为 0 不算盈利）, 得到 %v", result.WinRate)
	}
	if result.MaxDrawdown != 0 {
		t.Errorf("最大回撤: 期望 0, 得到 %v", result.MaxDrawdown)
	}
	if result.Score != 1000 {
		t.Errorf("评分: 期望 1000, 得到 %v", result.Score)
	}
	if len(result.EquityCurve) != len(series) {
		t.Fatalf("权益点数量: 期望 %d, 得到 %d", len(series), len(result.EquityCurve))
	}
	for i, p := range result.EquityCurve {
		if p.Equity != 1000 {
			t.Errorf("权益[%d]: 期望 1000, 得到 %v", i, p.Equity)
		}
	}
	if result.InsufficientData {
		t.Error("数据充足时不应标记 InsufficientData")
	}
}

func TestRunRoundTripWithExit(t *testing.T) {
	series := makeSeries(10, 10, 11, 13, 12, 10)
	result, err := Run(series, testParams(1, 2))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if result.TradeCount != 1 {
		t.Fatalf("交易次数: 期望 1, 得到 %d", result.TradeCount)
	}
	trade := result.Trades[0]
	if trade.EntryPrice != 11 || trade.ExitPrice != 12 || trade.Forced {
		t.Errorf("交易不符: %+v", trade)
	}
	if !trade.EntryTime.Equal(series[2].Timestamp) || !trade.ExitTime.Equal(series[4].Timestamp) {
		t.Errorf("交易时间不符: %v -> %v", trade.EntryTime, trade.ExitTime)
	}
	if result.FinalBalance != 1001 {
		t.Errorf("最终余额: 期望 1001, 得到 %v", result.FinalBalance)
	}
	if result.WinRate != 1 {
		t.Errorf("胜率: 期望 1, 得到 %v", result.WinRate)
	}

	want := []float64{1000, 1000, 1000, 1002, 1001, 1001}
	if got := result.EquityValues(); !reflect.DeepEqual(got, want) {
		t.Errorf("权益曲线: 期望 %v, 得到 %v", want, got)
	}
	if !almostEqual(result.MaxDrawdown, -1.0/1002) {
		t.Errorf("最大回撤: 期望 %v, 得到 %v", -1.0/1002, result.MaxDrawdown)
	}
	if !almostEqual(result.Score, 1001-10000.0/1002) {
		t.Errorf("评分: 期望 %v, 得到 %v", 1001-10000.0/1002, result.Score)
	}
	if !almostEqual(result.Metrics.Exposure, 2.0/6) {
		t.Errorf("持仓占比: 期望 %v, 得到 %v", 2.0/6, result.Metrics.Exposure)
	}
}

// TestForcedLiquidationWithFees 序列结束仍持仓时按最后收盘价卖出并扣费
func TestForcedLiquidationWithFees(t *testing.T) {
	series := makeSeries(10, 10, 10, 11, 12, 13)
	params := Params{ShortWindow: 1, LongWindow: 2, InitialCapital: 1000, FeeRate: 0.001, TradeSize: 2}

	result, err := Run(series, params)
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	wantFinal := 1000 - (11*2 + 11*2*0.001) + (13*2 - 13*2*0.001)
	if !almostEqual(result.FinalBalance, wantFinal) {
		t.Errorf("最终余额: 期望 %v, 得到 %v", wantFinal, result.FinalBalance)
	}
	last := result.EquityCurve[len(result.EquityCurve)-1]
	if last.Equity != result.FinalBalance {
		t.Errorf("最后权益点应被改写为平仓后现金: %v != %v", last.Equity, result.FinalBalance)
	}
	if len(result.Fills) != 2 {
		t.Fatalf("成交数量: 期望 2, 得到 %d", len(result.Fills))
	}
	sell := result.Fills[1]
	if sell.Side != SideSell || !sell.Forced || sell.Price != 13 {
		t.Errorf("强制平仓成交不符: %+v", sell)
	}
	wantPnL := (13-11)*2 - (11*2*0.001 + 13*2*0.001)
	if !almostEqual(result.Trades[0].PnL, wantPnL) {
		t.Errorf("盈亏: 期望 %v, 得到 %v", wantPnL, result.Trades[0].PnL)
	}
}

func TestRunRejectsInvalidParams(t *testing.T) {
	series := makeSeries(1, 2, 3, 4, 5)
	tests := []struct {
		name   string
		params Params
		field  string
	}{
		{"窗口相等", testParams(20, 20), "short_window"},
		{"短窗口大于长窗口", testParams(5, 3), "short_window"},
		{"短窗口为0", testParams(0, 3), "short_window"},
		{"长窗口为负", testParams(2, -1), "long_window"},
		{"资金为0", Params{ShortWindow: 2, LongWindow: 3, TradeSize: 1}, "initial_capital"},
		{"数量为0", Params{ShortWindow: 2, LongWindow: 3, InitialCapital: 1}, "trade_size"},
		{"费率为负", Params{ShortWindow: 2, LongWindow: 3, InitialCapital: 1, TradeSize: 1, FeeRate: -0.1}, "fee_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(series, tt.params)
			if err == nil {
				t.Fatal("期望返回参数错误")
			}
			if result != nil {
				t.Error("参数错误时不应返回结果")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("期望 errors.Is(err, ErrConfiguration), 得到 %v", err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("期望 *ConfigurationError, 得到 %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("字段: 期望 %s, 得到 %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestRunRejectsInvalidSeries(t *testing.T) {
	dup := makeSeries(1, 2, 3)
	dup[2].Timestamp = dup[1].Timestamp

	nonPositive := makeSeries(1, 0, 3)

	for name, series := range map[string]PriceSeries{"重复时间": dup, "收盘价为0": nonPositive} {
		_, err := Run(series, testParams(1, 2))
		if !errors.Is(err, ErrInvalidSeries) {
			t.Errorf("%s: 期望 ErrInvalidSeries, 得到 %v", name, err)
		}
	}
}

func TestRunInsufficientData(t *testing.T) {
	series := makeSeries(100, 101)
	result, err := Run(series, testParams(2, 3))
	if err != nil {
		t.Fatalf("数据不足不应返回错误: %v", err)
	}
	if !result.InsufficientData {
		t.Error("期望 InsufficientData 为 true")
	}
	if result.TradeCount != 0 || result.MaxDrawdown != 0 || result.FinalBalance != 1000 {
		t.Errorf("期望零交易结果, 得到 trades=%d dd=%v final=%v",
			result.TradeCount, result.MaxDrawdown, result.FinalBalance)
	}
	if len(result.EquityCurve) != 2 {
		t.Errorf("权益点数量: 期望 2, 得到 %d", len(result.EquityCurve))
	}

	empty, err := Run(nil, testParams(2, 3))
	if err != nil {
		t.Fatalf("空序列不应返回错误: %v", err)
	}
	if len(empty.EquityCurve) != 0 || empty.FinalBalance != 1000 || !empty.InsufficientData {
		t.Errorf("空序列结果不符: %+v", empty)
	}
}

func TestRunDeterministic(t *testing.T) {
	series := randomWalk(42, 2000, 150)
	params := Params{ShortWindow: 10, LongWindow: 40, InitialCapital: 10000, FeeRate: 0.00002, TradeSize: 1}

	first, err := Run(series, params)
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}
	second, err := Run(series, params)
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("相同输入两次回测结果不一致")
	}

	score, err := Evaluate(series, params)
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if score != first.Score {
		t.Errorf("Evaluate 与 Run 评分不一致: %v != %v", score, first.Score)
	}
}

// TestRunInvariants 随机序列上检查资金、持仓与回撤性质
func TestRunInvariants(t *testing.T) {
	params := Params{ShortWindow: 5, LongWindow: 20, InitialCapital: 10000, FeeRate: 0.0005, TradeSize: 3}

	for seed := int64(1); seed <= 20; seed++ {
		series := randomWalk(seed, 500, 100)
		result, err := Run(series, params)
		if err != nil {
			t.Fatalf("seed %d: 回测失败: %v", seed, err)
		}

		// 成交严格 BUY/SELL 交替，且以 SELL 结束
		for i, f := range result.Fills {
			want := SideBuy
			if i%2 == 1 {
				want = SideSell
			}
			if f.Side != want {
				t.Fatalf("seed %d: 第 %d 笔成交方向: 期望 %s, 得到 %s", seed, i, want, f.Side)
			}
			if f.Size != params.TradeSize {
				t.Errorf("seed %d: 成交数量 %v 不等于 tradeSize", seed, f.Size)
			}
			if !almostEqual(f.Fee, f.Price*f.Size*params.FeeRate) {
				t.Errorf("seed %d: 手续费不符: %+v", seed, f)
			}
		}
		if len(result.Fills)%2 != 0 {
			t.Errorf("seed %d: 结束时仍有未平仓成交", seed)
		}
		if result.TradeCount != len(result.Fills)/2 {
			t.Errorf("seed %d: 交易数 %d 与成交数 %d 不匹配", seed, result.TradeCount, len(result.Fills))
		}

		if result.MaxDrawdown > 0 {
			t.Errorf("seed %d: 最大回撤应 <= 0, 得到 %v", seed, result.MaxDrawdown)
		}
		if (result.MaxDrawdown == 0) != nonDecreasing(result.EquityValues()) {
			t.Errorf("seed %d: 回撤为0当且仅当权益不降", seed)
		}

		if _, err := Reconcile(result); err != nil {
			t.Errorf("seed %d: 对账失败: %v", seed, err)
		}
	}
}

func nonDecreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

func TestRunConcurrentSharedSeries(t *testing.T) {
	series := randomWalk(7, 1000, 100)
	want, err := Run(series, testParams(5, 30))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	done := make(chan *BacktestResult, 8)
	for i := 0; i < 8; i++ {
		go func() {
			r, _ := Run(series, testParams(5, 30))
			done <- r
		}()
	}
	for i := 0; i < 8; i++ {
		if got := <-done; got == nil || got.Score != want.Score {
			t.Error("并发回测结果与单次结果不一致")
		}
	}
}
