package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	// 日志级别
	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// SQLite 只允许单连接写入
	if config.Type == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&BacktestRun{},
		&TradeRecord{},
		&SearchRecord{},
		&SearchResultRecord{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

// SaveRun 在一个事务中保存回测及其交易明细
func (g *GormDatabase) SaveRun(ctx context.Context, run *BacktestRun) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trades := run.Trades
		run.Trades = nil
		if err := tx.Create(run).Error; err != nil {
			run.Trades = trades
			return err
		}
		for i := range trades {
			trades[i].RunID = run.ID
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, 100).Error; err != nil {
				run.Trades = trades
				return err
			}
		}
		run.Trades = trades
		return nil
	})
}

// GetRun 获取回测记录（含交易明细）
func (g *GormDatabase) GetRun(ctx context.Context, id uint) (*BacktestRun, error) {
	var run BacktestRun
	err := g.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("回测记录 %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 查询回测记录（不含交易明细），按时间倒序
func (g *GormDatabase) ListRuns(ctx context.Context, filter *RunFilter) ([]*BacktestRun, error) {
	query := g.db.WithContext(ctx).Model(&BacktestRun{})

	if filter == nil {
		filter = &RunFilter{}
	}
	if filter.Mode != "" {
		query = query.Where("mode = ?", filter.Mode)
	}
	if filter.Symbol != "" {
		query = query.Where("symbol = ?", filter.Symbol)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since)
	}

	query = query.Order("created_at DESC").Order("id DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var runs []*BacktestRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetTrades 获取某次回测的交易明细
func (g *GormDatabase) GetTrades(ctx context.Context, runID uint) ([]*TradeRecord, error) {
	var trades []*TradeRecord
	err := g.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// DeleteRun 删除回测记录及其交易明细
func (g *GormDatabase) DeleteRun(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&TradeRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&BacktestRun{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("回测记录 %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SaveSearch 在一个事务中保存搜索及其结果
func (g *GormDatabase) SaveSearch(ctx context.Context, search *SearchRecord) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		results := search.Results
		search.Results = nil
		defer func() { search.Results = results }()

		if err := tx.Create(search).Error; err != nil {
			return err
		}
		for i := range results {
			results[i].SearchID = search.ID
		}
		if len(results) > 0 {
			return tx.CreateInBatches(results, 100).Error
		}
		return nil
	})
}

// GetSearch 获取搜索记录（含结果）
func (g *GormDatabase) GetSearch(ctx context.Context, id uint) (*SearchRecord, error) {
	var search SearchRecord
	err := g.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("result_rank ASC") }).
		First(&search, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("搜索记录 %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &search, nil
}

// Ping 健康检查
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
