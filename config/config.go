package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"macross/backtest"
)

// Config 应用配置
type Config struct {
	// 策略参数（report / watch 模式使用，也是 search 的基础参数）
	Strategy backtest.Params `yaml:"strategy"`

	// 参数网格搜索
	Search SearchConfig `yaml:"search"`

	// 行情数据
	Data struct {
		CSVPath  string `yaml:"csv_path"` // 本地 CSV（source=csv 时读取，fetch 时写入）
		Source   string `yaml:"source"`   // csv, yahoo, binance，默认 csv
		Symbol   string `yaml:"symbol"`   // yahoo: USDJPY=X，binance: BTCUSDT
		Interval string `yaml:"interval"` // K线周期，默认 5m
		Days     int    `yaml:"days"`     // 拉取天数，默认 30

		// K线缓存（SQLite）
		Cache struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"` // 默认 ./data/bars.db
		} `yaml:"cache"`

		// Binance 公共行情接口无需密钥，可选
		Binance struct {
			APIKey    string `yaml:"api_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"binance"`

		RequestsPerSecond float64 `yaml:"requests_per_second"` // 拉取限速，默认 2
	} `yaml:"data"`

	// 输出
	Output struct {
		TradesCSV string `yaml:"trades_csv"` // 默认 trades_latest.csv
		EquityCSV string `yaml:"equity_csv"` // 为空则不输出
		ReportDir string `yaml:"report_dir"` // 为空则不生成 Markdown 报告
	} `yaml:"output"`

	// 回测记录数据库
	Database struct {
		Enabled         bool   `yaml:"enabled"`
		Type            string `yaml:"type"`              // sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 默认 ./data/macross.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 默认10
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 默认5
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 秒，默认3600
		LogLevel        string `yaml:"log_level"`         // silent, error, warn, info，默认 error
	} `yaml:"database"`

	// 评分缓存
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`     // 默认 localhost:6379
		Password string `yaml:"password"` // 默认为空
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"` // 默认10
		Prefix   string `yaml:"prefix"`    // 默认 macross:score:
		TTL      int    `yaml:"ttl"`       // 秒，默认86400，0 表示不过期
	} `yaml:"redis"`

	// Web 服务
	Web struct {
		Host string `yaml:"host"` // 默认 127.0.0.1
		Port int    `yaml:"port"` // 默认 8080
	} `yaml:"web"`

	System struct {
		LogLevel string `yaml:"log_level"`
		Timezone string `yaml:"timezone"` // 展示时区，默认 Asia/Tokyo
		Language string `yaml:"language"` // ja-JP, en-US, zh-CN，默认 ja-JP
	} `yaml:"system"`
}

// SearchConfig 网格搜索配置，上下界均包含
type SearchConfig struct {
	ShortMin  int `yaml:"short_min" json:"short_min"`
	ShortMax  int `yaml:"short_max" json:"short_max"`
	ShortStep int `yaml:"short_step" json:"short_step"`
	LongMin   int `yaml:"long_min" json:"long_min"`
	LongMax   int `yaml:"long_max" json:"long_max"`
	LongStep  int `yaml:"long_step" json:"long_step"`
	Workers   int `yaml:"workers" json:"workers"` // 0 表示使用 CPU 核数
	TopN      int `yaml:"top_n" json:"top_n"`     // 输出前 N 名，默认 10
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := CreateDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// CreateDefaultConfig 默认配置：USDJPY 5分钟线，20/60 均线
func CreateDefaultConfig() *Config {
	cfg := &Config{Strategy: backtest.DefaultParams()}

	cfg.Search = SearchConfig{
		ShortMin: 5, ShortMax: 30, ShortStep: 5,
		LongMin: 40, LongMax: 120, LongStep: 10,
		TopN: 10,
	}

	cfg.Data.CSVPath = "usdjpy_yahoo_30d_5m.csv"
	cfg.Data.Source = "csv"
	cfg.Data.Symbol = "USDJPY=X"
	cfg.Data.Interval = "5m"
	cfg.Data.Days = 30

	cfg.Output.TradesCSV = "trades_latest.csv"

	cfg.Redis.TTL = 86400

	cfg.System.LogLevel = "INFO"
	return cfg
}

// Validate 填充默认值并校验
func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("策略参数无效: %w", err)
	}

	if err := c.Search.Validate(); err != nil {
		return err
	}

	c.Data.Source = strings.ToLower(strings.TrimSpace(c.Data.Source))
	if c.Data.Source == "" {
		c.Data.Source = "csv"
	}
	switch c.Data.Source {
	case "csv":
		if c.Data.CSVPath == "" {
			return fmt.Errorf("数据源为 csv 时必须指定 data.csv_path")
		}
	case "yahoo", "binance":
		if c.Data.Symbol == "" {
			return fmt.Errorf("数据源为 %s 时必须指定 data.symbol", c.Data.Source)
		}
	default:
		return fmt.Errorf("不支持的数据源: %s", c.Data.Source)
	}
	if c.Data.Interval == "" {
		c.Data.Interval = "5m"
	}
	if c.Data.Days <= 0 {
		c.Data.Days = 30
	}
	if c.Data.Cache.Path == "" {
		c.Data.Cache.Path = "./data/bars.db"
	}
	if c.Data.RequestsPerSecond <= 0 {
		c.Data.RequestsPerSecond = 2
	}

	if c.Output.TradesCSV == "" {
		c.Output.TradesCSV = "trades_latest.csv"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		if c.Database.Type != "sqlite" && c.Database.Enabled {
			return fmt.Errorf("数据库类型为 %s 时必须指定 database.dsn", c.Database.Type)
		}
		c.Database.DSN = "./data/macross.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "macross:score:"
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl 不能为负数")
	}

	if c.Web.Host == "" {
		c.Web.Host = "127.0.0.1"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port 超出范围: %d", c.Web.Port)
	}

	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.Timezone == "" {
		c.System.Timezone = "Asia/Tokyo"
	}
	if c.System.Language == "" {
		c.System.Language = "ja-JP"
	}

	return nil
}

// Validate 校验搜索网格并填充默认值
func (s *SearchConfig) Validate() error {
	if s.ShortStep <= 0 {
		s.ShortStep = 5
	}
	if s.LongStep <= 0 {
		s.LongStep = 10
	}
	if s.ShortMin <= 0 || s.LongMin <= 0 {
		return fmt.Errorf("搜索网格下界必须大于0 (short_min=%d, long_min=%d)", s.ShortMin, s.LongMin)
	}
	if s.ShortMax < s.ShortMin || s.LongMax < s.LongMin {
		return fmt.Errorf("搜索网格上界不能小于下界")
	}
	if s.Workers < 0 {
		return fmt.Errorf("search.workers 不能为负数")
	}
	if s.TopN <= 0 {
		s.TopN = 10
	}
	return nil
}

// Windows 展开网格中的 (short, long) 组合，跳过 short >= long
func (s SearchConfig) Windows() [][2]int {
	var pairs [][2]int
	for short := s.ShortMin; short <= s.ShortMax; short += s.ShortStep {
		for long := s.LongMin; long <= s.LongMax; long += s.LongStep {
			if short >= long {
				continue
			}
			pairs = append(pairs, [2]int{short, long})
		}
	}
	return pairs
}
