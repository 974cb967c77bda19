package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" INFO ":  INFO,
		"warning": WARN,
		"Error":   ERROR,
		"fatal":   FATAL,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q): 期望 %s, 得到 %s", in, want, got)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(INFO)
	defer SetOutput(nil)

	Debug("调试消息 %d", 1)
	Info("🚀 开始回测: %s", "short=20")
	Warn("注意 %s", "x")

	text := buf.String()
	if strings.Contains(text, "调试消息") {
		t.Error("INFO 级别不应输出 DEBUG 日志")
	}
	if !strings.Contains(text, "开始回测: short=20") {
		t.Errorf("缺少 INFO 日志: %s", text)
	}
	if !strings.Contains(text, "注意 x") {
		t.Errorf("缺少 WARN 日志: %s", text)
	}
}

func TestDebugWritesFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogDir(dir)
	SetLevel(DEBUG)
	defer func() {
		SetLevel(INFO)
		SetOutput(nil)
		SetLogDir("logs")
	}()

	Debug("写入文件 %s", "ok")

	matches, _ := filepath.Glob(filepath.Join(dir, "app-macross-*.log"))
	if len(matches) != 1 {
		t.Fatalf("期望生成1个日志文件, 得到 %d", len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "写入文件 ok") {
		t.Errorf("日志文件缺少内容: %s", data)
	}
}
