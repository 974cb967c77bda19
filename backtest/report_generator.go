package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"macross/utils"
)

const reportTimeLayout = "2006-01-02 15:04"

// tradesCSVHeader 交易明细列
var tradesCSVHeader = []string{
	"entry_time", "exit_time", "direction", "entry_price", "exit_price",
	"size", "fee", "pnl", "equity_after", "forced",
}

// SaveTradesCSV 保存交易明细，没有交易时不生成文件并返回 false
func SaveTradesCSV(result *BacktestResult, path string) (bool, error) {
	if result == nil || len(result.Trades) == 0 {
		return false, nil
	}
	if err := ensureDir(path); err != nil {
		return false, err
	}

	file, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("创建交易明细文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(tradesCSVHeader); err != nil {
		return false, fmt.Errorf("写入交易明细失败: %w", err)
	}

	balance := decimal.NewFromFloat(result.Params.InitialCapital)
	for _, t := range result.Trades {
		balance = balance.Add(decimal.NewFromFloat(t.PnL))
		record := []string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			"LONG",
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Size),
			formatFloat(t.EntryFee + t.ExitFee),
			formatFloat(t.PnL),
			balance.StringFixed(6),
			strconv.FormatBool(t.Forced),
		}
		if err := w.Write(record); err != nil {
			return false, fmt.Errorf("写入交易明细失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("写入交易明细失败: %w", err)
	}
	return true, nil
}

// SaveEquityCurveCSV 保存权益曲线
func SaveEquityCurveCSV(result *BacktestResult, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Write([]string{"timestamp", "equity"})
	for _, p := range result.EquityCurve {
		w.Write([]string{p.Timestamp.UTC().Format(time.RFC3339), formatFloat(p.Equity)})
	}
	w.Flush()
	return w.Error()
}

// GenerateReport 在 dir 下生成 Markdown 回测报告，返回文件路径
func GenerateReport(result *BacktestResult, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	filename := fmt.Sprintf("macross_%d_%d_%s.md",
		result.Params.ShortWindow,
		result.Params.LongWindow,
		time.Now().Format("2006-01-02_15-04-05"),
	)
	reportPath := filepath.Join(dir, filename)

	content, err := RenderReport(result)
	if err != nil {
		return "", fmt.Errorf("渲染报告模板失败: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}
	return reportPath, nil
}

// ReportData 报告模板数据
type ReportData struct {
	Params         string
	GeneratedAt    string
	StartDate      string
	EndDate        string
	Bars           int
	InitialCapital string
	FinalBalance   string
	NetProfit      string
	TotalFees      string
	TotalReturn    string
	MaxDrawdown    string
	Score          string

	MaxDrawdownDuration int
	Volatility          string
	SharpeRatio         string
	SortinoRatio        string
	Exposure            string

	TradeCount           int
	WinRate              string
	ProfitFactor         string
	AvgWin               string
	AvgLoss              string
	LargestWin           string
	LargestLoss          string
	AvgBarsHeld          string
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	VaR95  string
	VaR99  string
	CVaR95 string
	CVaR99 string

	Trades           []TradeRow
	InsufficientData bool
	Conclusion       string
}

// TradeRow 报告中的交易行
type TradeRow struct {
	EntryTime  string
	ExitTime   string
	EntryPrice string
	ExitPrice  string
	PnL        string
	Note       string
}

// maxReportTrades 报告中最多列出的交易数
const maxReportTrades = 20

// RenderReport 渲染报告内容
func RenderReport(result *BacktestResult) (string, error) {
	t, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, prepareReportData(result)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func prepareReportData(result *BacktestResult) ReportData {
	m := result.Metrics
	r := result.RiskMetrics

	rows := make([]TradeRow, 0, maxReportTrades)
	for i, t := range result.Trades {
		if i >= maxReportTrades {
			break
		}
		row := TradeRow{
			EntryTime:  formatTime(t.EntryTime),
			ExitTime:   formatTime(t.ExitTime),
			EntryPrice: formatPrice(t.EntryPrice),
			ExitPrice:  formatPrice(t.ExitPrice),
			PnL:        formatMoney(t.PnL),
		}
		if t.Forced {
			row.Note = "强制平仓"
		}
		rows = append(rows, row)
	}

	return ReportData{
		Params:         result.Params.String(),
		GeneratedAt:    formatTime(time.Now()),
		StartDate:      formatTime(result.StartTime),
		EndDate:        formatTime(result.EndTime),
		Bars:           result.Bars,
		InitialCapital: formatMoney(result.Params.InitialCapital),
		FinalBalance:   formatMoney(result.FinalBalance),
		NetProfit:      formatMoney(m.NetProfit),
		TotalFees:      formatMoney(m.TotalFees),
		TotalReturn:    fmt.Sprintf("%.2f%%", m.TotalReturn),
		MaxDrawdown:    fmt.Sprintf("%.2f%%", result.MaxDrawdown*100),
		Score:          formatMoney(result.Score),

		MaxDrawdownDuration: m.MaxDrawdownDuration,
		Volatility:          fmt.Sprintf("%.4f%%", m.Volatility),
		SharpeRatio:         fmt.Sprintf("%.4f", m.SharpeRatio),
		SortinoRatio:        fmt.Sprintf("%.4f", m.SortinoRatio),
		Exposure:            fmt.Sprintf("%.2f%%", m.Exposure*100),

		TradeCount:           result.TradeCount,
		WinRate:              fmt.Sprintf("%.2f%%", result.WinRate*100),
		ProfitFactor:         fmt.Sprintf("%.2f", m.ProfitFactor),
		AvgWin:               formatMoney(m.AvgWin),
		AvgLoss:              formatMoney(m.AvgLoss),
		LargestWin:           formatMoney(m.LargestWin),
		LargestLoss:          formatMoney(m.LargestLoss),
		AvgBarsHeld:          fmt.Sprintf("%.1f", m.AvgBarsHeld),
		MaxConsecutiveWins:   m.MaxConsecutiveWins,
		MaxConsecutiveLosses: m.MaxConsecutiveLosses,

		VaR95:  fmt.Sprintf("%.4f%%", r.VaR95),
		VaR99:  fmt.Sprintf("%.4f%%", r.VaR99),
		CVaR95: fmt.Sprintf("%.4f%%", r.CVaR95),
		CVaR99: fmt.Sprintf("%.4f%%", r.CVaR99),

		Trades:           rows,
		InsufficientData: result.InsufficientData,
		Conclusion:       generateConclusion(result),
	}
}

// generateConclusion 生成结论
func generateConclusion(result *BacktestResult) string {
	if result.InsufficientData {
		return "⚠️ K线数量不足长周期窗口，未产生任何信号"
	}
	m := result.Metrics
	var conclusions []string

	switch {
	case result.TradeCount == 0:
		conclusions = append(conclusions, "⚠️ 回测期间没有发生交叉，没有交易")
	case m.TotalReturn > 0:
		conclusions = append(conclusions, fmt.Sprintf("✅ 策略盈利，总收益率 %.2f%%", m.TotalReturn))
	default:
		conclusions = append(conclusions, fmt.Sprintf("❌ 策略亏损，总收益率 %.2f%%", m.TotalReturn))
	}

	dd := -result.MaxDrawdown * 100
	switch {
	case dd < 1:
		conclusions = append(conclusions, "✅ 最大回撤小于 1%")
	case dd < 5:
		conclusions = append(conclusions, "⚠️ 最大回撤在 1-5% 之间")
	default:
		conclusions = append(conclusions, "❌ 最大回撤超过 5%")
	}

	if result.TradeCount > 0 {
		if result.WinRate > 0.5 {
			conclusions = append(conclusions, "✅ 胜率超过 50%")
		} else {
			conclusions = append(conclusions, "⚠️ 胜率不足 50%")
		}
		if m.ProfitFactor > 1 {
			conclusions = append(conclusions, "✅ 利润因子 > 1")
		} else if m.AvgLoss > 0 {
			conclusions = append(conclusions, "❌ 利润因子 <= 1，亏损大于盈利")
		}
	}

	return strings.Join(conclusions, "\n\n")
}

const reportTemplate = `# 均线交叉策略回测报告

生成时间: {{.GeneratedAt}}

## 执行摘要

- **参数**: {{.Params}}
- **回测期间**: {{.StartDate}} 至 {{.EndDate}} ({{.Bars}} 根K线)
- **初始资金**: {{.InitialCapital}}
- **最终余额**: {{.FinalBalance}}
- **净利润**: {{.NetProfit}}
- **总收益率**: {{.TotalReturn}}
- **最大回撤**: {{.MaxDrawdown}}
- **评分**: {{.Score}}
{{if .InsufficientData}}
> 数据不足，结果为零交易。
{{end}}
## 风险指标

| 指标 | 数值 |
|------|------|
| 最大回撤 | {{.MaxDrawdown}} |
| 最长回撤持续 | {{.MaxDrawdownDuration}} 根K线 |
| 逐K线波动率 | {{.Volatility}} |
| 夏普比率（逐K线） | {{.SharpeRatio}} |
| 索提诺比率（逐K线） | {{.SortinoRatio}} |
| 持仓时间占比 | {{.Exposure}} |
| VaR (95%) | {{.VaR95}} |
| VaR (99%) | {{.VaR99}} |
| CVaR (95%) | {{.CVaR95}} |
| CVaR (99%) | {{.CVaR99}} |

## 交易指标

| 指标 | 数值 |
|------|------|
| 交易次数 | {{.TradeCount}} |
| 胜率 | {{.WinRate}} |
| 利润因子 | {{.ProfitFactor}} |
| 手续费合计 | {{.TotalFees}} |
| 平均盈利 | {{.AvgWin}} |
| 平均亏损 | {{.AvgLoss}} |
| 最大单笔盈利 | {{.LargestWin}} |
| 最大单笔亏损 | {{.LargestLoss}} |
| 平均持仓K线数 | {{.AvgBarsHeld}} |
| 最大连续盈利 | {{.MaxConsecutiveWins}} 笔 |
| 最大连续亏损 | {{.MaxConsecutiveLosses}} 笔 |

## 交易明细（前20笔）

| 开仓时间 | 平仓时间 | 开仓价 | 平仓价 | 盈亏 | 备注 |
|------|------|------|------|------|------|
{{range .Trades}}| {{.EntryTime}} | {{.ExitTime}} | {{.EntryPrice}} | {{.ExitPrice}} | {{.PnL}} | {{.Note}} |
{{end}}
## 结论

{{.Conclusion}}
`

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return utils.ToConfiguredTimezone(t).Format(reportTimeLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(5)
}

// formatMoney 金额保留两位小数
func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
