package backtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveTradesCSV(t *testing.T) {
	dir := t.TempDir()
	result, err := Run(makeSeries(10, 10, 11, 13, 12, 10), testParams(1, 2))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	path := filepath.Join(dir, "out", "trades_latest.csv")
	saved, err := SaveTradesCSV(result, path)
	if err != nil || !saved {
		t.Fatalf("保存交易明细失败: saved=%v err=%v", saved, err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开文件失败: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("读取 CSV 失败: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("行数: 期望 2, 得到 %d", len(rows))
	}
	if rows[0][0] != "entry_time" || rows[1][2] != "LONG" {
		t.Errorf("CSV 内容不符: %v", rows)
	}
	if rows[1][8] != "1001.000000" {
		t.Errorf("equity_after: 期望 1001.000000, 得到 %s", rows[1][8])
	}
}

func TestSaveTradesCSVSkipsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	result, err := Run(makeSeries(1, 2), testParams(1, 2))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	saved, err := SaveTradesCSV(result, path)
	if err != nil || saved {
		t.Fatalf("无交易时不应保存: saved=%v err=%v", saved, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("无交易时不应生成文件")
	}
}

func TestGenerateReport(t *testing.T) {
	dir := t.TempDir()
	result, err := Run(makeSeries(100, 101, 99, 102, 103), testParams(2, 3))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	path, err := GenerateReport(result, dir)
	if err != nil {
		t.Fatalf("生成报告失败: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	text := string(content)
	for _, want := range []string{"均线交叉策略回测报告", "1000.00", "强制平仓", "short=2 long=3"} {
		if !strings.Contains(text, want) {
			t.Errorf("报告缺少 %q", want)
		}
	}

	equityPath := filepath.Join(dir, "equity.csv")
	if err := SaveEquityCurveCSV(result, equityPath); err != nil {
		t.Fatalf("保存权益曲线失败: %v", err)
	}
	data, _ := os.ReadFile(equityPath)
	if lines := strings.Count(string(data), "\n"); lines != 6 {
		t.Errorf("权益曲线行数: 期望 6, 得到 %d", lines)
	}
}
