package utils

import (
	"sync"
	"time"
)

// DefaultTimezone 默认展示时区（行情数据本身以 UTC 存储）
const DefaultTimezone = "Asia/Tokyo"

var (
	locMu          sync.RWMutex
	globalLocation = time.UTC
)

func init() {
	SetLocation(DefaultTimezone)
}

// SetLocation 设置全局展示时区
// 支持 IANA 名称以及 "UTC+9" 这样的固定偏移写法，失败时保留原有时区
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		fixed, ok := parseFixedZone(name)
		if !ok {
			return err
		}
		loc = fixed
	}
	locMu.Lock()
	globalLocation = loc
	locMu.Unlock()
	return nil
}

// Location 当前展示时区
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return globalLocation
}

// parseFixedZone 解析 UTC+8 / UTC-5 形式
func parseFixedZone(name string) (*time.Location, bool) {
	if len(name) < 5 || name[:3] != "UTC" {
		return nil, false
	}
	sign := 1
	switch name[3] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, false
	}
	hours := 0
	for _, c := range name[4:] {
		if c < '0' || c > '9' {
			return nil, false
		}
		hours = hours*10 + int(c-'0')
	}
	if hours > 14 {
		return nil, false
	}
	return time.FixedZone(name, sign*hours*3600), true
}

// ToConfiguredTimezone 将时间转换为配置的时区
func ToConfiguredTimezone(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(Location())
}

// ToUTC 将时间转换为UTC时间
func ToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// NowConfiguredTimezone 获取当前配置时区的时间
func NowConfiguredTimezone() time.Time {
	return time.Now().In(Location())
}
