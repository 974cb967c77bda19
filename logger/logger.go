package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota // 调试信息（最详细）
	INFO                  // 一般信息
	WARN                  // 警告信息
	ERROR                 // 错误信息
	FATAL                 // 致命错误（程序无法继续）
)

const consoleTimeFormat = "2006/01/02 15:04:05"

var (
	mu          sync.RWMutex
	globalLevel LogLevel = INFO
	out         io.Writer = os.Stdout
	base        zerolog.Logger

	// DEBUG 级别时额外写入按日期命名的文件
	logDir      = "logs"
	logFile     *os.File
	currentDate string

	// Web 访问日志
	webLogger  *zerolog.Logger
	webLogFile *os.File
	webDate    string

	globalLocation = time.Local
)

func init() {
	zerolog.TimestampFunc = func() time.Time {
		mu.RLock()
		loc := globalLocation
		mu.RUnlock()
		return time.Now().In(loc)
	}
	rebuild()
}

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLogLevel 解析日志级别字符串，无法识别时返回 INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// rebuild 根据当前输出和级别重建 zerolog 实例，调用方需持有 mu 或处于 init
func rebuild() {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat, NoColor: out != os.Stdout}}
	if logFile != nil {
		writers = append(writers, logFile)
	}
	base = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().
		Level(globalLevel.zerolog())
}

// SetLevel 设置全局日志级别，DEBUG 级别时启用文件日志
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
	if level == DEBUG {
		openFileLocked()
	} else {
		closeFileLocked()
	}
	rebuild()
}

// GetLevel 获取全局日志级别
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return globalLevel
}

// SetOutput 设置控制台输出目标
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
	rebuild()
}

// SetLocation 设置日志时间戳时区
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	globalLocation = loc
}

// SetLogDir 设置日志文件目录
func SetLogDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
}

func today() string {
	return time.Now().In(globalLocation).Format("2006-01-02")
}

func openFileLocked() {
	date := today()
	if logFile != nil && currentDate == date {
		return
	}
	closeFileLocked()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 创建日志文件夹失败: %v，将只输出到控制台\n", err)
		return
	}
	name := filepath.Join(logDir, fmt.Sprintf("app-macross-%s.log", date))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 打开日志文件失败: %v，将只输出到控制台\n", err)
		return
	}
	logFile = file
	currentDate = date
}

func closeFileLocked() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
		currentDate = ""
	}
}

// InitWebLogger 初始化 Web 访问日志文件
func InitWebLogger() error {
	mu.Lock()
	defer mu.Unlock()
	return openWebLocked()
}

func openWebLocked() error {
	date := today()
	if webLogger != nil && webDate == date {
		return nil
	}
	if webLogFile != nil {
		webLogFile.Close()
		webLogFile = nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志文件夹失败: %w", err)
	}
	name := filepath.Join(logDir, fmt.Sprintf("web-gin-%s.log", date))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开 Web 日志文件失败: %w", err)
	}
	l := zerolog.New(file).With().Timestamp().Logger()
	webLogger = &l
	webLogFile = file
	webDate = date
	return nil
}

// WriteWebLog 写入 Web 访问日志，未初始化时忽略
func WriteWebLog(message string) {
	mu.Lock()
	if webLogger == nil {
		mu.Unlock()
		return
	}
	if webDate != today() {
		if err := openWebLocked(); err != nil {
			mu.Unlock()
			return
		}
	}
	l := webLogger
	mu.Unlock()

	// 时间戳函数需要读锁，写日志前先释放
	l.Info().Msg(message)
}

// Close 关闭日志文件（程序退出时调用）
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	if webLogFile != nil {
		webLogFile.Close()
		webLogFile = nil
		webLogger = nil
		webDate = ""
	}
	rebuild()
}

func logf(level LogLevel, format string, args ...interface{}) {
	mu.Lock()
	if level < globalLevel {
		mu.Unlock()
		return
	}
	if globalLevel == DEBUG && currentDate != today() {
		openFileLocked()
		rebuild()
	}
	l := base
	mu.Unlock()

	l.WithLevel(level.zerolog()).Msg(fmt.Sprintf(format, args...))
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Info 输出一般信息日志
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(format string, args ...interface{}) {
	logf(FATAL, format, args...)
	Close()
	os.Exit(1)
}
