package backtest

import "macross/indicators"

// Signal 交易信号
type Signal int

const (
	SignalNone Signal = iota
	SignalEnterLong
	SignalExitLong
)

func (s Signal) String() string {
	switch s {
	case SignalEnterLong:
		return "ENTER_LONG"
	case SignalExitLong:
		return "EXIT_LONG"
	default:
		return "NONE"
	}
}

// DeriveSignal 根据相邻两根K线的均线判断金叉/死叉
// 任一根均线未就绪时不产生信号；均线持平本身不触发
func DeriveSignal(prev, cur IndicatorPair) Signal {
	if !prev.Valid || !cur.Valid {
		return SignalNone
	}
	switch {
	case indicators.CrossOver(prev.Short, prev.Long, cur.Short, cur.Long):
		return SignalEnterLong
	case indicators.CrossUnder(prev.Short, prev.Long, cur.Short, cur.Long):
		return SignalExitLong
	default:
		return SignalNone
	}
}

// GenerateSignals 逐根生成信号，第0根恒为 SignalNone
func GenerateSignals(pairs []IndicatorPair) []Signal {
	signals := make([]Signal, len(pairs))
	for i := 1; i < len(pairs); i++ {
		signals[i] = DeriveSignal(pairs[i-1], pairs[i])
	}
	return signals
}
