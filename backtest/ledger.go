package backtest

import "time"

// PositionState 持仓状态
type PositionState int

const (
	StateFlat PositionState = iota // 空仓
	StateLong                      // 持有 tradeSize 多头
)

func (s PositionState) String() string {
	if s == StateLong {
		return "LONG"
	}
	return "FLAT"
}

type transitionKey struct {
	state  PositionState
	signal Signal
}

type transitionFunc func(l *PositionLedger, bar Bar) Fill

// transitions 状态转移表，表中没有的 (状态, 信号) 组合均为空操作
var transitions = map[transitionKey]transitionFunc{
	{StateFlat, SignalEnterLong}: (*PositionLedger).openLong,
	{StateLong, SignalExitLong}:  (*PositionLedger).closeLong,
}

// PositionLedger 现金与单一多头持仓的状态机
type PositionLedger struct {
	feeRate   float64
	tradeSize float64

	state      PositionState
	cash       float64
	units      float64
	entryPrice float64
	entryTime  time.Time

	fills  []Fill
	equity []EquityPoint
}

// NewPositionLedger 创建账本
func NewPositionLedger(initialCapital, feeRate, tradeSize float64, capacity int) *PositionLedger {
	if capacity < 0 {
		capacity = 0
	}
	return &PositionLedger{
		feeRate:   feeRate,
		tradeSize: tradeSize,
		state:     StateFlat,
		cash:      initialCapital,
		equity:    make([]EquityPoint, 0, capacity),
	}
}

// Step 处理一根K线：先执行信号，再按收盘价记录权益
func (l *PositionLedger) Step(bar Bar, signal Signal) {
	l.Apply(bar, signal)
	l.Mark(bar)
}

// Apply 按状态转移表执行信号，返回是否产生成交
func (l *PositionLedger) Apply(bar Bar, signal Signal) bool {
	fn, ok := transitions[transitionKey{l.state, signal}]
	if !ok {
		return false
	}
	l.fills = append(l.fills, fn(l, bar))
	return true
}

// Mark 以当前K线收盘价记录权益
func (l *PositionLedger) Mark(bar Bar) {
	l.equity = append(l.equity, EquityPoint{
		Timestamp: bar.Timestamp,
		Equity:    l.cash + l.units*bar.Close,
	})
}

// Liquidate 若仍持仓，以 bar 收盘价强制平仓并改写最后一个权益点
func (l *PositionLedger) Liquidate(bar Bar) bool {
	if l.state != StateLong {
		return false
	}
	fill := l.closeLong(bar)
	fill.Forced = true
	l.fills = append(l.fills, fill)

	if n := len(l.equity); n > 0 {
		l.equity[n-1].Equity = l.cash
	}
	return true
}

func (l *PositionLedger) openLong(bar Bar) Fill {
	price := bar.Close
	fee := price * l.tradeSize * l.feeRate

	l.cash -= price*l.tradeSize + fee
	l.units = l.tradeSize
	l.entryPrice = price
	l.entryTime = bar.Timestamp
	l.state = StateLong

	return Fill{Timestamp: bar.Timestamp, Side: SideBuy, Price: price, Size: l.tradeSize, Fee: fee}
}

func (l *PositionLedger) closeLong(bar Bar) Fill {
	price := bar.Close
	size := l.units
	fee := price * size * l.feeRate

	l.cash += price*size - fee
	l.units = 0
	l.entryPrice = 0
	l.entryTime = time.Time{}
	l.state = StateFlat

	return Fill{Timestamp: bar.Timestamp, Side: SideSell, Price: price, Size: size, Fee: fee}
}

// State 当前状态
func (l *PositionLedger) State() PositionState { return l.state }

// Cash 当前现金
func (l *PositionLedger) Cash() float64 { return l.cash }

// Units 当前持仓数量
func (l *PositionLedger) Units() float64 { return l.units }

// Entry 开仓价与开仓时间，空仓时 ok 为 false
func (l *PositionLedger) Entry() (price float64, at time.Time, ok bool) {
	return l.entryPrice, l.entryTime, l.state == StateLong
}

// Fills 成交记录
func (l *PositionLedger) Fills() []Fill { return l.fills }

// EquityCurve 权益曲线
func (l *PositionLedger) EquityCurve() []EquityPoint { return l.equity }
