package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"macross/backtest"
	"macross/optimizer"
)

func openTestDB(t *testing.T) *GormDatabase {
	t.Helper()
	db, err := NewGormDatabase(&DBConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "macross.db"),
	})
	if err != nil {
		t.Fatalf("创建数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testResult() *backtest.BacktestResult {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	params := backtest.Params{ShortWindow: 2, LongWindow: 3, InitialCapital: 1000, FeeRate: 0, TradeSize: 1}
	return &backtest.BacktestResult{
		Params:       params,
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Bars:         13,
		FinalBalance: 1003,
		MaxDrawdown:  -0.001,
		TradeCount:   2,
		WinRate:      0.5,
		Score:        993,
		Trades: []backtest.RoundTrip{
			{EntryTime: start, ExitTime: start.Add(10 * time.Minute), EntryPrice: 100, ExitPrice: 99, Size: 1, PnL: -1},
			{EntryTime: start.Add(20 * time.Minute), ExitTime: start.Add(time.Hour), EntryPrice: 99, ExitPrice: 103, Size: 1, PnL: 4, Forced: true},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := NewBacktestRun(RunMeta{Mode: "report", Source: "csv", Symbol: "USDJPY=X", Interval: "5m"}, testResult())
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("保存回测失败: %v", err)
	}
	if run.ID == 0 || len(run.Trades) != 2 || run.Trades[1].RunID != run.ID {
		t.Fatalf("保存后 ID 未回填: %+v", run)
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("读取回测失败: %v", err)
	}
	if got.ShortWindow != 2 || got.LongWindow != 3 || got.Score != 993 || got.Symbol != "USDJPY=X" {
		t.Errorf("回测记录不符: %+v", got)
	}
	if len(got.Trades) != 2 {
		t.Fatalf("交易数量: 期望 2, 得到 %d", len(got.Trades))
	}
	if got.Trades[0].EquityAfter != 999 || got.Trades[1].EquityAfter != 1003 || !got.Trades[1].Forced {
		t.Errorf("交易明细不符: %+v", got.Trades)
	}

	trades, err := db.GetTrades(ctx, run.ID)
	if err != nil || len(trades) != 2 || trades[0].Seq != 1 {
		t.Errorf("GetTrades 不符: %v %v", trades, err)
	}
}

func TestListAndDeleteRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, mode := range []string{"report", "api", "report"} {
		if err := db.SaveRun(ctx, NewBacktestRun(RunMeta{Mode: mode, Symbol: "USDJPY=X"}, testResult())); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListRuns(ctx, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("记录数量: 期望 3, 得到 %d (%v)", len(all), err)
	}
	if len(all[0].Trades) != 0 {
		t.Error("列表不应加载交易明细")
	}

	reports, _ := db.ListRuns(ctx, &RunFilter{Mode: "report", Limit: 1})
	if len(reports) != 1 || reports[0].Mode != "report" {
		t.Errorf("过滤结果不符: %+v", reports)
	}

	if err := db.DeleteRun(ctx, all[0].ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, err := db.GetRun(ctx, all[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("期望 ErrNotFound, 得到 %v", err)
	}
	if trades, _ := db.GetTrades(ctx, all[0].ID); len(trades) != 0 {
		t.Errorf("交易明细应一并删除, 剩余 %d", len(trades))
	}
	if err := db.DeleteRun(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("删除不存在的记录: 期望 ErrNotFound, 得到 %v", err)
	}
}

func TestSaveSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	summary := &optimizer.Summary{
		Base:      backtest.DefaultParams(),
		Evaluated: 2,
		Skipped:   1,
		Duration:  1500 * time.Millisecond,
		Results: []optimizer.Result{
			{Rank: 1, ShortWindow: 10, LongWindow: 60, Score: 10020},
			{Rank: 2, ShortWindow: 5, LongWindow: 40, Score: 9990},
		},
	}
	summary.Best = &summary.Results[0]

	rec := NewSearchRecord(RunMeta{Source: "yahoo", Symbol: "USDJPY=X", Interval: "5m"}, 8000, summary)
	if err := db.SaveSearch(ctx, rec); err != nil {
		t.Fatalf("保存搜索失败: %v", err)
	}

	got, err := db.GetSearch(ctx, rec.ID)
	if err != nil {
		t.Fatalf("读取搜索失败: %v", err)
	}
	if got.BestShort != 10 || got.BestLong != 60 || got.DurationMs != 1500 || got.Bars != 8000 {
		t.Errorf("搜索记录不符: %+v", got)
	}
	if len(got.Results) != 2 || got.Results[1].Rank != 2 || got.Results[1].ShortWindow != 5 {
		t.Errorf("搜索结果不符: %+v", got.Results)
	}
}

func TestNewDatabaseUnsupported(t *testing.T) {
	if _, err := NewDatabase(&Config{Type: "oracle"}); err == nil {
		t.Error("不支持的数据库类型应该报错")
	}
}
