package backtest

import (
	"math"

	"macross/indicators"
)

// DrawdownPenalty 评分中最大回撤的权重
// score = finalBalance + maxDrawdown * DrawdownPenalty，回撤为负比例
const DrawdownPenalty = 10000.0

// Metrics 扩展回测指标
type Metrics struct {
	// 收益指标
	TotalReturn float64 `json:"total_return"` // 总收益率 (%)
	NetProfit   float64 `json:"net_profit"`   // 净利润
	TotalFees   float64 `json:"total_fees"`   // 手续费合计

	// 风险指标
	MaxDrawdownDuration int     `json:"max_drawdown_duration"` // 最长回撤持续K线数
	Volatility          float64 `json:"volatility"`            // 逐K线收益率标准差 (%)
	SharpeRatio         float64 `json:"sharpe_ratio"`          // 逐K线夏普，未年化
	SortinoRatio        float64 `json:"sortino_ratio"`         // 逐K线索提诺，未年化
	Exposure            float64 `json:"exposure"`              // 持仓K线占比

	// 交易指标
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	AvgBarsHeld  float64 `json:"avg_bars_held"`

	// 连续性指标
	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}

// CalculateMaxDrawdown 计算最大回撤（<= 0 的比例）
// 峰值初始化为第一个权益值，仅在峰值为正时计算回撤
func CalculateMaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equity[0]
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (e - peak) / peak; dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}

// PairRoundTrips 将 BUY/SELL 成交两两配对为完整交易
// 没有后续 SELL 的 BUY 不计入
func PairRoundTrips(fills []Fill) []RoundTrip {
	trips := make([]RoundTrip, 0, len(fills)/2)
	var open *Fill
	for i := range fills {
		f := fills[i]
		switch f.Side {
		case SideBuy:
			open = &fills[i]
		case SideSell:
			if open == nil {
				continue
			}
			trips = append(trips, RoundTrip{
				EntryTime:  open.Timestamp,
				EntryPrice: open.Price,
				ExitTime:   f.Timestamp,
				ExitPrice:  f.Price,
				Size:       f.Size,
				EntryFee:   open.Fee,
				ExitFee:    f.Fee,
				PnL:        (f.Price-open.Price)*f.Size - (open.Fee + f.Fee),
				Forced:     f.Forced,
			})
			open = nil
		}
	}
	return trips
}

// CalculateWinRate 胜率（比例），无交易时为 0
func CalculateWinRate(trades []RoundTrip) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// CalculateScore 参数搜索使用的评分
func CalculateScore(finalBalance, maxDrawdown float64) float64 {
	return finalBalance + maxDrawdown*DrawdownPenalty
}

// CalculateMetrics 计算扩展指标
func CalculateMetrics(equity []EquityPoint, trades []RoundTrip, fills []Fill, initialCapital float64) Metrics {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}
	returns := calculateReturns(values)

	m := Metrics{
		TotalReturn:         calculateTotalReturn(values, initialCapital),
		TotalFees:           calculateTotalFees(fills),
		MaxDrawdownDuration: calculateMaxDrawdownDuration(values),
		Volatility:          indicators.StdDev(returns) * 100,
		SharpeRatio:         calculateSharpeRatio(returns),
		SortinoRatio:        calculateSortinoRatio(returns),
		Exposure:            calculateExposure(equity, trades),
		ProfitFactor:        calculateProfitFactor(trades),
		AvgBarsHeld:         calculateAvgBarsHeld(equity, trades),
	}
	if len(values) > 0 {
		m.NetProfit = values[len(values)-1] - initialCapital
	}

	m.AvgWin, m.LargestWin = winStats(trades)
	m.AvgLoss, m.LargestLoss = lossStats(trades)
	m.MaxConsecutiveWins, m.MaxConsecutiveLosses = calculateStreaks(trades)

	return m
}

// calculateReturns 逐K线收益率
func calculateReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			returns[i-1] = (equity[i] - equity[i-1]) / equity[i-1]
		}
	}
	return returns
}

func calculateTotalReturn(equity []float64, initialCapital float64) float64 {
	if len(equity) == 0 || initialCapital == 0 {
		return 0
	}
	return (equity[len(equity)-1] - initialCapital) / initialCapital * 100
}

func calculateTotalFees(fills []Fill) float64 {
	total := 0.0
	for _, f := range fills {
		total += f.Fee
	}
	return total
}

// calculateMaxDrawdownDuration 最长的连续低于峰值的K线数
func calculateMaxDrawdownDuration(equity []float64) int {
	if len(equity) == 0 {
		return 0
	}

	maxDuration := 0
	current := 0
	peak := equity[0]
	for _, e := range equity {
		if e >= peak {
			peak = e
			current = 0
			continue
		}
		current++
		if current > maxDuration {
			maxDuration = current
		}
	}
	return maxDuration
}

func calculateSharpeRatio(returns []float64) float64 {
	std := indicators.StdDev(returns)
	if std == 0 {
		return 0
	}
	return indicators.Mean(returns) / std
}

// calculateSortinoRatio 只考虑下行波动
func calculateSortinoRatio(returns []float64) float64 {
	downVariance := 0.0
	downCount := 0
	for _, r := range returns {
		if r < 0 {
			downVariance += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}
	downStd := math.Sqrt(downVariance / float64(downCount))
	if downStd == 0 {
		return 0
	}
	return indicators.Mean(returns) / downStd
}

// barsHeld 每笔交易持有的K线数（含开仓K线，不含平仓K线）
func barsHeld(equity []EquityPoint, trades []RoundTrip) []int {
	held := make([]int, len(trades))
	if len(equity) == 0 {
		return held
	}
	j := 0
	for i, t := range trades {
		for j < len(equity) && equity[j].Timestamp.Before(t.EntryTime) {
			j++
		}
		start := j
		for j < len(equity) && equity[j].Timestamp.Before(t.ExitTime) {
			j++
		}
		held[i] = j - start
		// 强制平仓发生在最后一根K线，该K线收盘前仍持仓
		if t.Forced && j < len(equity) {
			held[i]++
		}
	}
	return held
}

func calculateExposure(equity []EquityPoint, trades []RoundTrip) float64 {
	if len(equity) == 0 {
		return 0
	}
	total := 0
	for _, n := range barsHeld(equity, trades) {
		total += n
	}
	return float64(total) / float64(len(equity))
}

func calculateAvgBarsHeld(equity []EquityPoint, trades []RoundTrip) float64 {
	if len(trades) == 0 {
		return 0
	}
	total := 0
	for _, n := range barsHeld(equity, trades) {
		total += n
	}
	return float64(total) / float64(len(trades))
}

// calculateProfitFactor 总盈利 / 总亏损，无亏损时为 0
func calculateProfitFactor(trades []RoundTrip) float64 {
	profit, loss := 0.0, 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			profit += t.PnL
		} else {
			loss += math.Abs(t.PnL)
		}
	}
	if loss == 0 {
		return 0
	}
	return profit / loss
}

func winStats(trades []RoundTrip) (avg, largest float64) {
	total := 0.0
	n := 0
	for _, t := range trades {
		if t.PnL > 0 {
			total += t.PnL
			n++
			if t.PnL > largest {
				largest = t.PnL
			}
		}
	}
	if n > 0 {
		avg = total / float64(n)
	}
	return avg, largest
}

// lossStats 亏损以正数表示
func lossStats(trades []RoundTrip) (avg, largest float64) {
	total := 0.0
	n := 0
	for _, t := range trades {
		if t.PnL < 0 {
			loss := -t.PnL
			total += loss
			n++
			if loss > largest {
				largest = loss
			}
		}
	}
	if n > 0 {
		avg = total / float64(n)
	}
	return avg, largest
}

// calculateStreaks 最大连续盈利/亏损次数，PnL 为 0 的交易中断两种连续
func calculateStreaks(trades []RoundTrip) (maxWins, maxLosses int) {
	wins, losses := 0, 0
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			losses = 0
		case t.PnL < 0:
			losses++
			wins = 0
		default:
			wins, losses = 0, 0
		}
		if wins > maxWins {
			maxWins = wins
		}
		if losses > maxLosses {
			maxLosses = losses
		}
	}
	return maxWins, maxLosses
}
