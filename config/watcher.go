package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent 被监控文件发生变化
type ChangeEvent struct {
	Path   string
	Config *Config // 配置文件变化时为重新加载后的配置，其余为 nil
}

// ConfigWatcher 监控配置文件以及额外的数据文件
type ConfigWatcher struct {
	configPath string
	extra      []string
	watcher    *fsnotify.Watcher
	debounce   time.Duration

	mu         sync.Mutex
	isWatching bool
	modTimes   map[string]time.Time

	updateChan chan ChangeEvent
	errorChan  chan error
}

// NewConfigWatcher 创建监控器，extra 为需要一并监控的文件（如行情 CSV）
func NewConfigWatcher(configPath string, extra ...string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	abs := func(p string) string {
		if a, err := filepath.Abs(p); err == nil {
			return a
		}
		return p
	}

	cw := &ConfigWatcher{
		configPath: abs(configPath),
		watcher:    watcher,
		debounce:   100 * time.Millisecond,
		modTimes:   make(map[string]time.Time),
		updateChan: make(chan ChangeEvent, 4),
		errorChan:  make(chan error, 10),
	}
	for _, p := range extra {
		if p != "" {
			cw.extra = append(cw.extra, abs(p))
		}
	}
	for _, p := range cw.paths() {
		if info, err := os.Stat(p); err == nil {
			cw.modTimes[p] = info.ModTime()
		}
	}
	return cw, nil
}

func (cw *ConfigWatcher) paths() []string {
	return append([]string{cw.configPath}, cw.extra...)
}

// Start 开始监控，ctx 取消后退出
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isWatching {
		return fmt.Errorf("配置监控器已经在运行")
	}

	// 监控目录而不是文件，编辑器保存时常常是替换文件
	dirs := make(map[string]bool)
	for _, p := range cw.paths() {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := cw.watcher.Add(dir); err != nil {
			return fmt.Errorf("添加监控目录失败: %w", err)
		}
		dirs[dir] = true
	}

	cw.isWatching = true
	go cw.watchLoop(ctx)
	return nil
}

// Stop 停止监控
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.isWatching {
		return nil
	}
	cw.isWatching = false
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watched(name string) bool {
	for _, p := range cw.paths() {
		if p == name {
			return true
		}
	}
	return false
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			name := event.Name
			if a, err := filepath.Abs(name); err == nil {
				name = a
			}
			if !cw.watched(name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// 等待写入完成
				time.Sleep(cw.debounce)
				cw.handleChange(name)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.sendError(err)

		case <-ticker.C:
			// 部分文件系统不产生事件，按修改时间兜底
			for _, p := range cw.paths() {
				cw.handleChange(p)
			}
		}
	}
}

func (cw *ConfigWatcher) handleChange(path string) {
	cw.mu.Lock()
	info, err := os.Stat(path)
	if err != nil {
		cw.mu.Unlock()
		return
	}
	if !info.ModTime().After(cw.modTimes[path]) {
		cw.mu.Unlock()
		return
	}
	cw.modTimes[path] = info.ModTime()
	cw.mu.Unlock()

	event := ChangeEvent{Path: path}
	if path == cw.configPath {
		cfg, err := LoadConfig(path)
		if err != nil {
			cw.sendError(fmt.Errorf("重新加载配置失败: %w", err))
			return
		}
		event.Config = cfg
	}

	select {
	case cw.updateChan <- event:
	default:
	}
}

func (cw *ConfigWatcher) sendError(err error) {
	select {
	case cw.errorChan <- err:
	default:
	}
}

// GetUpdateChan 文件变化通知
func (cw *ConfigWatcher) GetUpdateChan() <-chan ChangeEvent {
	return cw.updateChan
}

// GetErrorChan 错误通知
func (cw *ConfigWatcher) GetErrorChan() <-chan error {
	return cw.errorChan
}
