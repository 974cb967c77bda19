package backtest

import (
	"math"
	"sort"
)

// RiskMetrics 基于逐K线权益收益率的风险指标（百分比，损失取正数）
type RiskMetrics struct {
	VaR95       float64 `json:"var_95"`
	VaR99       float64 `json:"var_99"`
	CVaR95      float64 `json:"cvar_95"`
	CVaR99      float64 `json:"cvar_99"`
	WorstReturn float64 `json:"worst_return"` // 单根K线最大跌幅
	BestReturn  float64 `json:"best_return"`
}

// CalculateRiskMetrics 历史模拟法计算 VaR/CVaR
func CalculateRiskMetrics(equity []EquityPoint) RiskMetrics {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}
	returns := calculateReturns(values)
	if len(returns) == 0 {
		return RiskMetrics{}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return RiskMetrics{
		VaR95:       historicalVaR(sorted, 0.95) * 100,
		VaR99:       historicalVaR(sorted, 0.99) * 100,
		CVaR95:      expectedShortfall(sorted, 0.95) * 100,
		CVaR99:      expectedShortfall(sorted, 0.99) * 100,
		WorstReturn: sorted[0] * 100,
		BestReturn:  sorted[len(sorted)-1] * 100,
	}
}

// tailIndex 升序收益率中 (1-confidence) 分位的下标
func tailIndex(n int, confidence float64) int {
	index := int(float64(n) * (1 - confidence))
	if index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// historicalVaR sorted 需升序；收益为正时损失记为 0
func historicalVaR(sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return math.Max(0, -sorted[tailIndex(len(sorted), confidence)])
}

// expectedShortfall 分位点及以下收益率的平均损失
func expectedShortfall(sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := tailIndex(len(sorted), confidence)
	sum := 0.0
	for i := 0; i <= index; i++ {
		sum += sorted[i]
	}
	return math.Max(0, -sum/float64(index+1))
}
