package backtest

import (
	"fmt"

	"macross/indicators"
)

// IndicatorPair 单根K线上的短/长均线
type IndicatorPair struct {
	Short float64
	Long  float64
	Valid bool // 两条均线都已有足够数据
}

// CalculateIndicators 计算与K线逐根对齐的短/长周期简单均线
func CalculateIndicators(series PriceSeries, shortWindow, longWindow int) ([]IndicatorPair, error) {
	if err := validateWindows(shortWindow, longWindow); err != nil {
		return nil, err
	}

	closes := series.Closes()
	short, shortReady := indicators.SMA(closes, shortWindow)
	long, longReady := indicators.SMA(closes, longWindow)

	pairs := make([]IndicatorPair, len(series))
	for i := range pairs {
		if shortReady[i] && longReady[i] {
			pairs[i] = IndicatorPair{Short: short[i], Long: long[i], Valid: true}
		}
	}
	return pairs, nil
}

func validateWindows(shortWindow, longWindow int) error {
	if shortWindow <= 0 {
		return &ConfigurationError{Field: "short_window", Reason: fmt.Sprintf("must be positive, got %d", shortWindow)}
	}
	if longWindow <= 0 {
		return &ConfigurationError{Field: "long_window", Reason: fmt.Sprintf("must be positive, got %d", longWindow)}
	}
	if shortWindow >= longWindow {
		return &ConfigurationError{
			Field:  "short_window",
			Reason: fmt.Sprintf("must be less than long_window (%d >= %d)", shortWindow, longWindow),
		}
	}
	return nil
}
