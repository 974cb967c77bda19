package utils

import (
	"testing"
	"time"
)

func TestSetLocation(t *testing.T) {
	defer SetLocation(DefaultTimezone)

	if err := SetLocation("UTC+8"); err != nil {
		t.Fatalf("解析固定时区失败: %v", err)
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ToConfiguredTimezone(ts).Hour(); got != 8 {
		t.Errorf("UTC+8 小时: 期望 8, 得到 %d", got)
	}

	if err := SetLocation("UTC-5"); err != nil {
		t.Fatalf("解析固定时区失败: %v", err)
	}
	if got := ToConfiguredTimezone(ts).Hour(); got != 19 {
		t.Errorf("UTC-5 小时: 期望 19, 得到 %d", got)
	}

	if err := SetLocation("Not/AZone"); err == nil {
		t.Error("期望无效时区返回错误")
	}
	if Location().String() != "UTC-5" {
		t.Errorf("无效时区不应覆盖原有时区, 得到 %s", Location())
	}
}

func TestToConfiguredTimezoneZero(t *testing.T) {
	if !ToConfiguredTimezone(time.Time{}).IsZero() {
		t.Error("零值时间应保持不变")
	}
}
