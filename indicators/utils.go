// Package indicators 均线类技术指标
package indicators

import "math"

// ========== 基础计算工具 ==========

// SMA 简单移动平均
// 返回与 values 等长的切片，ready[i] 为 false 表示第 i 根之前数据不足一个窗口
// 每个窗口单独求和，不做滑动累加，保证相同窗口得到完全相同的浮点结果
func SMA(values []float64, period int) (result []float64, ready []bool) {
	result = make([]float64, len(values))
	ready = make([]bool, len(values))
	if period <= 0 {
		return result, ready
	}

	for i := period - 1; i < len(values); i++ {
		result[i] = Mean(values[i-period+1 : i+1])
		ready[i] = true
	}

	return result, ready
}

// Mean 平均值
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Sum 求和
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// StdDev 总体标准差
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// CrossOver 判断是否金叉（fast 由下方或持平处上穿 slow）
func CrossOver(prevFast, prevSlow, fast, slow float64) bool {
	return prevFast <= prevSlow && fast > slow
}

// CrossUnder 判断是否死叉（fast 由上方或持平处下穿 slow）
func CrossUnder(prevFast, prevSlow, fast, slow float64) bool {
	return prevFast >= prevSlow && fast < slow
}
