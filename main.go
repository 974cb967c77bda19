package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"macross/cache"
	"macross/config"
	"macross/database"
	"macross/i18n"
	"macross/logger"
	"macross/marketdata"
	"macross/metrics"
	"macross/storage"
	"macross/utils"
)

// Version 版本号
var Version = "1.2.0"

const usage = `macross - 移动平均线交叉策略回测

用法:
  macross <command> [-config config.yaml] [flags]

命令:
  report   按配置回测一次并输出结果（默认）
  search   网格搜索短期/长期均线周期
  fetch    拉取历史K线并保存为 CSV
  latest   显示最新收盘价
  serve    启动 HTTP API
  watch    监控配置和 CSV，变化时重新回测
  version  显示版本号
`

// app 一次命令运行所需的依赖
type app struct {
	configPath string
	cfg        *config.Config

	bars    *storage.SQLiteStorage
	db      database.Database
	cache   cache.ResultCache
	metrics *metrics.MetricsCollector
}

func main() {
	args := os.Args[1:]
	cmd := "report"
	if len(args) > 0 {
		switch a := args[0]; {
		case a == "-version" || a == "--version":
			cmd = "version"
		case a != "" && a[0] != '-':
			cmd, args = a, args[1:]
		}
	}

	var err error
	switch cmd {
	case "report":
		err = cmdReport(args)
	case "search":
		err = cmdSearch(args)
	case "fetch":
		err = cmdFetch(args)
	case "latest":
		err = cmdLatest(args)
	case "serve":
		err = cmdServe(args)
	case "watch":
		err = cmdWatch(args)
	case "version":
		fmt.Printf("macross %s\n", Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}

	logger.Close()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet 每个子命令共用 -config 参数
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "配置文件路径")
	return fs, configPath
}

// loadConfig 读取配置；文件不存在时写出默认配置
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("ℹ️ 配置文件不存在，使用默认配置并写入 %s", path)
		cfg := config.CreateDefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := config.SaveConfig(cfg, path); err != nil {
			logger.Warn("⚠️ 写入默认配置失败: %v", err)
		}
		return cfg, nil
	}
	return config.LoadConfig(path)
}

// applySystem 应用日志级别、时区、语言
func applySystem(cfg *config.Config) {
	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))
	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 时区设置失败，使用 UTC: %v", err)
	}
	logger.SetLocation(utils.Location())
	if err := i18n.Init(cfg.System.Language); err != nil {
		logger.Warn("⚠️ 语言设置失败: %v", err)
	}
}

// newApp 加载配置并打开已启用的存储
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	applySystem(cfg)

	a := &app{
		configPath: configPath,
		cfg:        cfg,
		metrics:    metrics.NewMetricsCollector(),
	}

	if cfg.Data.Cache.Enabled {
		bars, err := storage.NewSQLiteStorage(cfg.Data.Cache.Path)
		if err != nil {
			logger.Warn("⚠️ K线缓存不可用，将直接拉取: %v", err)
		} else {
			a.bars = bars
		}
	}

	if cfg.Database.Enabled {
		if cfg.Database.Type == "sqlite" {
			os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755)
		}
		db, err := database.NewDatabase(&database.Config{
			Type:            cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
			LogLevel:        cfg.Database.LogLevel,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("初始化数据库失败: %w", err)
		}
		a.db = db
		logger.Info("✅ 数据库已连接: %s", cfg.Database.Type)
	}

	resultCache, err := cache.NewResultCache(ctx, &cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
		TTL:      time.Duration(cfg.Redis.TTL) * time.Second,
	})
	if err != nil {
		logger.Warn("⚠️ 评分缓存不可用: %v", err)
		resultCache = cache.NewNopCache()
	}
	a.cache = resultCache

	return a, nil
}

// barCache 返回 K线缓存，未启用时为 nil 接口
func (a *app) barCache() marketdata.BarCache {
	if a.bars == nil {
		return nil
	}
	return a.bars
}

func (a *app) loadDataset(ctx context.Context) (*marketdata.Dataset, error) {
	return marketdata.LoadDataset(ctx, a.cfg, a.barCache(), time.Now())
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.bars != nil {
		a.bars.Close()
	}
}
