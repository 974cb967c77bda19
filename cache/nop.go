package cache

import "context"

// NopCache 空实现（未启用缓存）
type NopCache struct{}

func NewNopCache() *NopCache {
	return &NopCache{}
}

func (n *NopCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	return Entry{}, false, nil
}

func (n *NopCache) Set(ctx context.Context, key string, entry Entry) error {
	return nil
}

func (n *NopCache) Delete(ctx context.Context, key string) error {
	return nil
}

func (n *NopCache) Stats(ctx context.Context) (Stats, error) {
	return Stats{Backend: "nop"}, nil
}

func (n *NopCache) Close() error {
	return nil
}
