package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"macross/backtest"
	"macross/config"
	"macross/database"
	"macross/i18n"
	"macross/logger"
	"macross/marketdata"
	"macross/metrics"
	"macross/optimizer"
	"macross/utils"
	"macross/web"
)

const timeLayout = "2006-01-02 15:04"

// cmdReport 单次回测
func cmdReport(args []string) error {
	fs, configPath := newFlagSet("report")
	short := fs.Int("short", 0, "短期均线周期（覆盖配置）")
	long := fs.Int("long", 0, "长期均线周期（覆盖配置）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if *short > 0 {
		a.cfg.Strategy.ShortWindow = *short
	}
	if *long > 0 {
		a.cfg.Strategy.LongWindow = *long
	}
	_, err = a.report(ctx, "report")
	return err
}

// report 加载数据、回测、输出结果并保存记录
func (a *app) report(ctx context.Context, mode string) (*backtest.BacktestResult, error) {
	params := a.cfg.Strategy
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ds, err := a.loadDataset(ctx)
	if err != nil {
		logger.Error("❌ 获取历史数据失败: %v", err)
		return nil, err
	}

	start := time.Now()
	result, err := backtest.Run(ds.Series, params)
	a.metrics.RecordRun(mode, result, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("回测失败: %w", err)
	}
	printSummary(result)

	saved, err := backtest.SaveTradesCSV(result, a.cfg.Output.TradesCSV)
	switch {
	case err != nil:
		logger.Error("❌ 保存交易明细失败: %v", err)
	case saved:
		fmt.Println(i18n.T("trades_saved", map[string]interface{}{"Path": a.cfg.Output.TradesCSV}))
	default:
		fmt.Println(i18n.T("trades_none"))
	}

	if a.cfg.Output.EquityCSV != "" {
		if err := backtest.SaveEquityCurveCSV(result, a.cfg.Output.EquityCSV); err != nil {
			logger.Error("❌ 保存权益曲线失败: %v", err)
		}
	}
	if a.cfg.Output.ReportDir != "" {
		path, err := backtest.GenerateReport(result, a.cfg.Output.ReportDir)
		if err != nil {
			logger.Error("❌ 生成报告失败: %v", err)
		} else {
			fmt.Println(i18n.T("report_saved", map[string]interface{}{"Path": path}))
		}
	}

	if _, err := backtest.Reconcile(result); err != nil {
		logger.Warn("⚠️ 对账不一致: %v", err)
	}

	if a.db != nil {
		run := database.NewBacktestRun(database.RunMeta{
			Mode: mode, Source: ds.Source, Symbol: ds.Symbol, Interval: ds.Interval,
		}, result)
		if err := a.db.SaveRun(ctx, run); err != nil {
			logger.Warn("⚠️ 保存回测记录失败: %v", err)
		} else {
			logger.Debug("回测记录已保存: id=%d", run.ID)
		}
	}
	return result, nil
}

func printSummary(r *backtest.BacktestResult) {
	fmt.Println(i18n.T("summary_title"))
	fmt.Println(i18n.T("summary_params", map[string]interface{}{"Params": r.Params.String()}))
	if r.Bars > 0 {
		fmt.Println(i18n.T("summary_period", map[string]interface{}{
			"Start": utils.ToConfiguredTimezone(r.StartTime).Format(timeLayout),
			"End":   utils.ToConfiguredTimezone(r.EndTime).Format(timeLayout),
			"Bars":  r.Bars,
		}))
	}
	fmt.Println(i18n.T("summary_final_balance", map[string]interface{}{"Balance": fmt.Sprintf("%.2f", r.FinalBalance)}))
	fmt.Println(i18n.T("summary_trade_count", map[string]interface{}{"Count": r.TradeCount}))
	fmt.Println(i18n.T("summary_win_rate", map[string]interface{}{"WinRate": fmt.Sprintf("%.2f", r.WinRate*100)}))
	fmt.Println(i18n.T("summary_max_drawdown", map[string]interface{}{"Drawdown": fmt.Sprintf("%.2f", r.MaxDrawdown*100)}))
	fmt.Println(i18n.T("summary_score", map[string]interface{}{"Score": fmt.Sprintf("%.2f", r.Score)}))
	if r.InsufficientData {
		fmt.Println(i18n.T("summary_insufficient"))
	}
}

// cmdSearch 网格搜索
func cmdSearch(args []string) error {
	fs, configPath := newFlagSet("search")
	workers := fs.Int("workers", -1, "并发数（覆盖配置，0 为 CPU 核数）")
	topN := fs.Int("top", 0, "输出前 N 名（覆盖配置）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	grid := a.cfg.Search
	if *workers >= 0 {
		grid.Workers = *workers
	}
	if *topN > 0 {
		grid.TopN = *topN
	}

	ds, err := a.loadDataset(ctx)
	if err != nil {
		logger.Error("❌ 获取历史数据失败: %v", err)
		return err
	}

	logger.Info("🔍 开始网格搜索: %d 根K线, short %d~%d, long %d~%d",
		len(ds.Series), grid.ShortMin, grid.ShortMax, grid.LongMin, grid.LongMax)
	summary, err := optimizer.GridSearch(ctx, ds.Series, a.cfg.Strategy, grid.Windows(), optimizer.Options{
		Workers: grid.Workers,
		TopN:    grid.TopN,
		Cache:   a.cache,
		OnResult: func(done, total int, r optimizer.Result) {
			fmt.Println(i18n.T("search_row", map[string]interface{}{
				"Short": r.ShortWindow, "Long": r.LongWindow, "Score": fmt.Sprintf("%.2f", r.Score),
			}))
		},
	})
	if err != nil {
		return err
	}
	if summary.Best == nil {
		fmt.Println(i18n.T("search_none"))
		return nil
	}
	a.metrics.RecordSweep(summary.Best.Score)

	fmt.Println(i18n.T("search_best_title"))
	for _, r := range summary.Results {
		fmt.Printf("%3d. %s\n", r.Rank, i18n.T("search_row", map[string]interface{}{
			"Short": r.ShortWindow, "Long": r.LongWindow, "Score": fmt.Sprintf("%.2f", r.Score),
		}))
	}
	fmt.Println(i18n.T("summary_params", map[string]interface{}{"Params": summary.Params(*summary.Best).String()}))
	fmt.Println(i18n.T("search_best_score", map[string]interface{}{"Score": fmt.Sprintf("%.2f", summary.Best.Score)}))
	logger.Info("✅ 搜索完成: %d 组, 缓存命中 %d, 跳过 %d, 用时 %v",
		summary.Evaluated, summary.CacheHits, summary.Skipped, summary.Duration.Round(time.Millisecond))

	if a.db != nil {
		rec := database.NewSearchRecord(database.RunMeta{
			Source: ds.Source, Symbol: ds.Symbol, Interval: ds.Interval,
		}, len(ds.Series), summary)
		if err := a.db.SaveSearch(ctx, rec); err != nil {
			logger.Warn("⚠️ 保存搜索记录失败: %v", err)
		}
	}
	return nil
}

// cmdFetch 拉取K线写入 CSV
func cmdFetch(args []string) error {
	fs, configPath := newFlagSet("fetch")
	source := fs.String("source", "", "数据源 yahoo / binance / binance-futures（默认取配置，csv 时用 yahoo）")
	symbol := fs.String("symbol", "", "交易对（覆盖配置）")
	interval := fs.String("interval", "", "K线周期（覆盖配置）")
	days := fs.Int("days", 0, "拉取天数（覆盖配置）")
	out := fs.String("out", "", "输出文件（默认 data.csv_path）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	d := a.cfg.Data
	src := firstNonEmpty(*source, d.Source)
	if src == "csv" {
		src = "yahoo"
	}
	sym := firstNonEmpty(*symbol, d.Symbol, "USDJPY=X")
	iv := firstNonEmpty(*interval, d.Interval)
	n := d.Days
	if *days > 0 {
		n = *days
	}
	path := firstNonEmpty(*out, d.CSVPath)

	fetcher, err := marketdata.NewFetcher(src, d.Binance.APIKey, d.Binance.SecretKey, d.RequestsPerSecond)
	if err != nil {
		return err
	}
	series, err := marketdata.GetHistoricalData(ctx, fetcher, a.barCache(), marketdata.RecentRequest(sym, iv, n, time.Now()))
	if err != nil {
		logger.Error("❌ 获取历史数据失败: %v", err)
		return err
	}
	if err := marketdata.SaveCSV(path, series, sym); err != nil {
		return err
	}
	fmt.Println(i18n.T("fetch_saved", map[string]interface{}{"Path": path}))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// cmdLatest 最新收盘价
func cmdLatest(args []string) error {
	fs, configPath := newFlagSet("latest")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ds, err := a.loadDataset(ctx)
	if err != nil {
		return err
	}
	bar, err := marketdata.LatestRate(ds.Series)
	if err != nil {
		return err
	}
	fmt.Println(i18n.T("latest_title"))
	fmt.Println(i18n.T("latest_time", map[string]interface{}{"Time": utils.ToConfiguredTimezone(bar.Timestamp).Format(timeLayout)}))
	fmt.Println(i18n.T("latest_close", map[string]interface{}{"Close": fmt.Sprintf("%.3f", bar.Close)}))
	return nil
}

// cmdServe 启动 HTTP API，直到收到退出信号
func cmdServe(args []string) error {
	fs, configPath := newFlagSet("serve")
	port := fs.Int("port", 0, "监听端口（覆盖配置）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()
	if *port > 0 {
		a.cfg.Web.Port = *port
	}

	logger.Info("🚀 macross 启动...")
	logger.Info("📦 版本号: %s", Version)
	if err := logger.InitWebLogger(); err != nil {
		logger.Warn("⚠️ 初始化 Web 日志失败: %v", err)
	}

	system := metrics.NewSystemMetricsCollector(15 * time.Second)
	system.Start(ctx)
	defer system.Stop()

	server := web.NewWebServer(&web.Services{
		Config:  a.cfg,
		Version: Version,
		Cache:   a.cache,
		Bars:    a.bars,
		DB:      a.db,
		Metrics: a.metrics,
		System:  system,
		Loader:  a.loadDataset,
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("启动Web服务失败: %w", err)
	}

	// 等待退出信号（SIGINT 或 SIGTERM）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 收到退出信号，开始优雅关闭...")
	server.Stop()
	return nil
}

// cmdWatch 配置或 CSV 变化时重新回测
func cmdWatch(args []string) error {
	fs, configPath := newFlagSet("watch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	var extra []string
	if a.cfg.Data.Source == "csv" {
		extra = append(extra, a.cfg.Data.CSVPath)
	}
	watcher, err := config.NewConfigWatcher(*configPath, extra...)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	if _, err := a.report(ctx, "watch"); err != nil {
		logger.Error("❌ 回测失败: %v", err)
	}
	logger.Info("👀 正在监控 %s，按 Ctrl+C 退出", strings.Join(append([]string{*configPath}, extra...), ", "))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev := <-watcher.GetUpdateChan():
			if ev.Config != nil {
				a.cfg = ev.Config
				applySystem(a.cfg)
				logger.Info("🔄 配置已重新加载")
			} else {
				logger.Info("🔄 检测到数据变化: %s", ev.Path)
			}
			if _, err := a.report(ctx, "watch"); err != nil {
				logger.Error("❌ 回测失败: %v", err)
			}
		case err := <-watcher.GetErrorChan():
			logger.Warn("⚠️ 配置监控错误: %v", err)
		case <-sigChan:
			logger.Info("🛑 收到退出信号，停止监控")
			return nil
		}
	}
}
