// Package backtest 均线交叉策略回测引擎
//
// Run/Evaluate 是 (PriceSeries, Params) 的纯函数：不做 I/O、不记日志、
// 不修改输入序列，可在多个 goroutine 中并发调用。
package backtest

// Run 运行一次回测
func Run(series PriceSeries, params Params) (*BacktestResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	pairs, err := CalculateIndicators(series, params.ShortWindow, params.LongWindow)
	if err != nil {
		return nil, err
	}
	signals := GenerateSignals(pairs)

	ledger := NewPositionLedger(params.InitialCapital, params.FeeRate, params.TradeSize, len(series))
	for i, bar := range series {
		ledger.Step(bar, signals[i])
	}
	if len(series) > 0 {
		ledger.Liquidate(series[len(series)-1])
	}

	return analyze(series, params, ledger), nil
}

// Evaluate 只返回评分，供参数搜索使用
func Evaluate(series PriceSeries, params Params) (float64, error) {
	result, err := Run(series, params)
	if err != nil {
		return 0, err
	}
	return result.Score, nil
}

func analyze(series PriceSeries, params Params, ledger *PositionLedger) *BacktestResult {
	equity := ledger.EquityCurve()
	fills := ledger.Fills()
	trades := PairRoundTrips(fills)

	result := &BacktestResult{
		Params:           params,
		Bars:             len(series),
		FinalBalance:     ledger.Cash(),
		TradeCount:       len(trades),
		WinRate:          CalculateWinRate(trades),
		InsufficientData: len(series) < params.LongWindow,
		EquityCurve:      equity,
		Trades:           trades,
		Fills:            fills,
	}
	if len(series) > 0 {
		result.StartTime = series[0].Timestamp
		result.EndTime = series[len(series)-1].Timestamp
	}

	values := result.EquityValues()
	result.MaxDrawdown = CalculateMaxDrawdown(values)
	result.Score = CalculateScore(result.FinalBalance, result.MaxDrawdown)
	result.Metrics = CalculateMetrics(equity, trades, fills, params.InitialCapital)
	result.RiskMetrics = CalculateRiskMetrics(equity)

	return result
}
