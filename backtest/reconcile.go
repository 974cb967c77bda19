package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReconcileTolerance 对账允许的浮点误差
var ReconcileTolerance = decimal.New(1, -6)

// Reconciliation 对账结果
type Reconciliation struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	BuyOutflow     decimal.Decimal `json:"buy_outflow"`  // Σ(p*s+fee)
	SellInflow     decimal.Decimal `json:"sell_inflow"`  // Σ(p*s-fee)
	TotalFees      decimal.Decimal `json:"total_fees"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	ReportedCash   decimal.Decimal `json:"reported_cash"`
	TradePnL       decimal.Decimal `json:"trade_pnl"`
	CashDiff       decimal.Decimal `json:"cash_diff"`
	PnLDiff        decimal.Decimal `json:"pnl_diff"`
}

// Reconcile 用十进制重放成交，核对最终现金与交易盈亏
func Reconcile(result *BacktestResult) (*Reconciliation, error) {
	if result == nil {
		return nil, fmt.Errorf("回测结果为空")
	}

	rec := &Reconciliation{
		InitialCapital: decimal.NewFromFloat(result.Params.InitialCapital),
		ReportedCash:   decimal.NewFromFloat(result.FinalBalance),
	}

	feeRate := decimal.NewFromFloat(result.Params.FeeRate)
	for i, f := range result.Fills {
		notional := decimal.NewFromFloat(f.Price).Mul(decimal.NewFromFloat(f.Size))
		fee := notional.Mul(feeRate)
		if diff := fee.Sub(decimal.NewFromFloat(f.Fee)).Abs(); diff.GreaterThan(ReconcileTolerance) {
			return rec, fmt.Errorf("第 %d 笔成交手续费不一致: 期望 %s, 记录 %v", i, fee.StringFixed(8), f.Fee)
		}
		rec.TotalFees = rec.TotalFees.Add(fee)

		switch f.Side {
		case SideBuy:
			rec.BuyOutflow = rec.BuyOutflow.Add(notional).Add(fee)
		case SideSell:
			rec.SellInflow = rec.SellInflow.Add(notional).Sub(fee)
		default:
			return rec, fmt.Errorf("第 %d 笔成交方向未知: %q", i, f.Side)
		}
	}

	for _, t := range result.Trades {
		rec.TradePnL = rec.TradePnL.Add(decimal.NewFromFloat(t.PnL))
	}

	rec.ExpectedCash = rec.InitialCapital.Sub(rec.BuyOutflow).Add(rec.SellInflow)
	rec.CashDiff = rec.ExpectedCash.Sub(rec.ReportedCash)
	rec.PnLDiff = rec.TradePnL.Sub(rec.ReportedCash.Sub(rec.InitialCapital))

	if rec.CashDiff.Abs().GreaterThan(ReconcileTolerance) {
		return rec, fmt.Errorf("现金对账失败: 期望 %s, 实际 %s", rec.ExpectedCash.StringFixed(6), rec.ReportedCash.StringFixed(6))
	}
	if rec.PnLDiff.Abs().GreaterThan(ReconcileTolerance) {
		return rec, fmt.Errorf("盈亏对账失败: 交易合计 %s, 余额变动 %s",
			rec.TradePnL.StringFixed(6), rec.ReportedCash.Sub(rec.InitialCapital).StringFixed(6))
	}
	return rec, nil
}

// OK 是否在容差内
func (r *Reconciliation) OK() bool {
	return r.CashDiff.Abs().LessThanOrEqual(ReconcileTolerance) &&
		r.PnLDiff.Abs().LessThanOrEqual(ReconcileTolerance)
}
