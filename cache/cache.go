package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"macross/backtest"
)

// Entry 单组参数的回测摘要
type Entry struct {
	FinalBalance float64 `json:"final_balance"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TradeCount   int     `json:"trade_count"`
	WinRate      float64 `json:"win_rate"`
	Score        float64 `json:"score"`
}

// NewEntry 从回测结果提取摘要
func NewEntry(result *backtest.BacktestResult) Entry {
	return Entry{
		FinalBalance: result.FinalBalance,
		MaxDrawdown:  result.MaxDrawdown,
		TradeCount:   result.TradeCount,
		WinRate:      result.WinRate,
		Score:        result.Score,
	}
}

// Stats 缓存统计
type Stats struct {
	Backend string `json:"backend"`
	Keys    int64  `json:"keys"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// ResultCache 回测评分缓存接口
type ResultCache interface {
	// Get 命中时返回 true
	Get(ctx context.Context, key string) (Entry, bool, error)

	Set(ctx context.Context, key string, entry Entry) error

	Delete(ctx context.Context, key string) error

	Stats(ctx context.Context) (Stats, error)

	// Close 关闭连接
	Close() error
}

// Key 由K线指纹和参数生成缓存键
// 同一份数据同一组参数得到同一个键
func Key(series backtest.PriceSeries, params backtest.Params) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(series)))
	h.Write(buf[:])
	for _, bar := range series {
		binary.BigEndian.PutUint64(buf[:], uint64(bar.Timestamp.UnixNano()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(bar.Close))
		h.Write(buf[:])
	}
	h.Write([]byte(params.String()))
	return hex.EncodeToString(h.Sum(nil))
}
