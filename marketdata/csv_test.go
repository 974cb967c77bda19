package marketdata

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const downloaderCSV = `Price,Close,High,Low,Open,Volume
Ticker,USDJPY=X,USDJPY=X,USDJPY=X,USDJPY=X,USDJPY=X
Datetime,,,,,
2024-01-02 00:10:00+00:00,141.2,141.3,141.1,141.15,0
2024-01-02 00:00:00+00:00,141.0,141.1,140.9,140.95,0
2024-01-02 00:05:00+00:00,141.1,141.2,141.0,141.05,0
not-a-date,1,1,1,1,1
2024-01-02 00:05:00+00:00,999,999,999,999,0
2024-01-02 00:15:00+00:00,,,,,
`

func TestParseCSVDownloaderLayout(t *testing.T) {
	series, stats, err := ParseCSV(strings.NewReader(downloaderCSV))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if len(series) != 3 {
		t.Fatalf("K线数量: 期望 3, 得到 %d", len(series))
	}
	if stats.Rows != 8 || stats.Dropped != 4 || stats.Duplicates != 1 {
		t.Errorf("统计不符: %+v", stats)
	}

	wantCloses := []float64{141.0, 141.1, 141.2}
	for i, bar := range series {
		if bar.Close != wantCloses[i] {
			t.Errorf("收盘价[%d]: 期望 %v, 得到 %v", i, wantCloses[i], bar.Close)
		}
	}
	if series[1].Open != 141.05 || series[1].High != 141.2 || series[1].Low != 141.0 {
		t.Errorf("列映射错误: %+v", series[1])
	}
	if err := series.Validate(); err != nil {
		t.Errorf("整理后的序列应通过校验: %v", err)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !series[0].Timestamp.Equal(want) {
		t.Errorf("首根时间: 期望 %v, 得到 %v", want, series[0].Timestamp)
	}
}

func TestParseCSVPlainHeader(t *testing.T) {
	data := "timestamp,open,high,low,close,volume\n" +
		"2024-01-02T00:00:00Z,1,2,0.5,1.5,10\n" +
		"1704153900,1.5,2,1,1.8,11\n"

	series, _, err := ParseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(series) != 2 || series[1].Close != 1.8 || series[1].Volume != 11 {
		t.Fatalf("解析结果不符: %+v", series)
	}
	if !series[1].Timestamp.Equal(time.Unix(1704153900, 0)) {
		t.Errorf("Unix 秒时间解析错误: %v", series[1].Timestamp)
	}
}

func TestParseCSVErrors(t *testing.T) {
	if _, _, err := ParseCSV(strings.NewReader("")); !errors.Is(err, ErrNoData) {
		t.Errorf("空文件: 期望 ErrNoData, 得到 %v", err)
	}
	if _, _, err := ParseCSV(strings.NewReader("time,open\n2024-01-01,1\n")); err == nil {
		t.Error("缺少 Close 列应该报错")
	}
}

func TestSaveCSVKeepsDownloaderLayout(t *testing.T) {
	series, _, err := ParseCSV(strings.NewReader(downloaderCSV))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, series, "USDJPY=X"); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 || lines[1] != "Ticker,USDJPY=X,USDJPY=X,USDJPY=X,USDJPY=X,USDJPY=X" {
		t.Fatalf("输出格式不符:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "nested", "bars.csv")
	if err := SaveCSV(path, series, "USDJPY=X"); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	loaded, stats, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(loaded) != len(series) || stats.Dropped != 2 {
		t.Errorf("重新读取不一致: %d 根, stats=%+v", len(loaded), stats)
	}
}

func TestLatestRate(t *testing.T) {
	if _, err := LatestRate(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("空序列: 期望 ErrNoData, 得到 %v", err)
	}
	series, _, _ := ParseCSV(strings.NewReader(downloaderCSV))
	bar, err := LatestRate(series)
	if err != nil {
		t.Fatal(err)
	}
	if bar.Close != 141.2 {
		t.Errorf("最新收盘价: 期望 141.2, 得到 %v", bar.Close)
	}
}

func TestParseInterval(t *testing.T) {
	tests := map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := ParseInterval(in)
		if err != nil || got != want {
			t.Errorf("ParseInterval(%q): 期望 %v, 得到 %v (%v)", in, want, got, err)
		}
	}
	for _, bad := range []string{"", "m", "0m", "5x", "-1h"} {
		if _, err := ParseInterval(bad); err == nil {
			t.Errorf("ParseInterval(%q) 应该报错", bad)
		}
	}
}
