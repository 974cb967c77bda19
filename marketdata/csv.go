// Package marketdata 行情数据的读取、保存与拉取
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"macross/backtest"
)

// ErrNoData 没有可用的K线
var ErrNoData = errors.New("marketdata: no usable bars")

// ParseStats CSV 解析统计
type ParseStats struct {
	Rows       int // 数据行（不含表头）
	Dropped    int // 时间或收盘价无法使用而丢弃
	Duplicates int // 重复时间戳，保留首次出现
}

// timestampLayouts 支持的时间格式，无时区时按 UTC 解析
var timestampLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp 解析时间字符串，也接受 Unix 秒/毫秒
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("时间为空")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("无法解析时间: %q", s)
}

type columns struct {
	ts, open, high, low, close, volume int
}

// detectColumns 根据表头定位列
// 下载脚本生成的表头首列名为 Price 但内容是时间
func detectColumns(header []string) (columns, error) {
	cols := columns{ts: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "timestamp", "datetime", "date", "time":
			if cols.ts < 0 {
				cols.ts = i
			}
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close", "adj close":
			if cols.close < 0 {
				cols.close = i
			}
		case "volume":
			cols.volume = i
		}
	}
	if cols.ts < 0 {
		cols.ts = 0
	}
	if cols.close < 0 {
		return cols, fmt.Errorf("CSV 缺少 Close 列: %v", header)
	}
	return cols, nil
}

func field(record []string, i int) (float64, bool) {
	if i < 0 || i >= len(record) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseCSV 解析 CSV 并整理为严格递增的序列
// 无法解析时间或收盘价非正的行被丢弃（包括下载文件开头的元信息行）
func ParseCSV(r io.Reader) (backtest.PriceSeries, ParseStats, error) {
	var stats ParseStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, stats, ErrNoData
	}
	if err != nil {
		return nil, stats, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, stats, err
	}

	series := make(backtest.PriceSeries, 0, 1024)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("读取 CSV 第 %d 行失败: %w", stats.Rows+2, err)
		}
		stats.Rows++

		if cols.ts >= len(record) {
			stats.Dropped++
			continue
		}
		ts, err := ParseTimestamp(record[cols.ts])
		if err != nil {
			stats.Dropped++
			continue
		}
		closePrice, ok := field(record, cols.close)
		if !ok || !(closePrice > 0) {
			stats.Dropped++
			continue
		}

		bar := backtest.Bar{Timestamp: ts, Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice}
		if v, ok := field(record, cols.open); ok {
			bar.Open = v
		}
		if v, ok := field(record, cols.high); ok {
			bar.High = v
		}
		if v, ok := field(record, cols.low); ok {
			bar.Low = v
		}
		if v, ok := field(record, cols.volume); ok {
			bar.Volume = v
		}
		series = append(series, bar)
	}

	series, stats.Duplicates = Normalize(series)
	return series, stats, nil
}

// Normalize 按时间排序并去除重复时间戳（保留先出现的），返回去重数量
func Normalize(series backtest.PriceSeries) (backtest.PriceSeries, int) {
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	out := series[:0]
	dup := 0
	for _, bar := range series {
		if len(out) > 0 && bar.Timestamp.Equal(out[len(out)-1].Timestamp) {
			dup++
			continue
		}
		out = append(out, bar)
	}
	return out, dup
}

// LoadCSV 读取 CSV 文件
func LoadCSV(path string) (backtest.PriceSeries, ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("打开行情文件失败: %w", err)
	}
	defer file.Close()

	series, stats, err := ParseCSV(file)
	if err != nil {
		return nil, stats, fmt.Errorf("解析行情文件 %s 失败: %w", path, err)
	}
	return series, stats, nil
}

// WriteCSV 按下载脚本的格式写出：表头 + Ticker 行 + Datetime 行 + 数据
func WriteCSV(w io.Writer, series backtest.PriceSeries, ticker string) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Price", "Close", "High", "Low", "Open", "Volume"},
		{"Ticker", ticker, ticker, ticker, ticker, ticker},
		{"Datetime", "", "", "", "", ""},
	}
	for _, bar := range series {
		rows = append(rows, []string{
			bar.Timestamp.UTC().Format("2006-01-02 15:04:05-07:00"),
			formatFloat(bar.Close),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Open),
			formatFloat(bar.Volume),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("写入 CSV 失败: %w", err)
	}
	return nil
}

// SaveCSV 保存到文件，先写临时文件再重命名
func SaveCSV(path string, series backtest.PriceSeries, ticker string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("创建行情文件失败: %w", err)
	}
	if err := WriteCSV(file, series, ticker); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("关闭行情文件失败: %w", err)
	}
	return os.Rename(tmp, path)
}

// LatestRate 最新一根K线
func LatestRate(series backtest.PriceSeries) (backtest.Bar, error) {
	if len(series) == 0 {
		return backtest.Bar{}, ErrNoData
	}
	latest := series[0]
	for _, bar := range series[1:] {
		if bar.Timestamp.After(latest.Timestamp) {
			latest = bar
		}
	}
	return latest, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
