package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"macross/config"
)

func TestLoadDatasetCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(downloaderCSV), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.CreateDefaultConfig()
	cfg.Data.CSVPath = path
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadDataset(context.Background(), cfg, nil, time.Now())
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if ds.Source != "csv" || ds.Symbol != "USDJPY=X" || len(ds.Series) != 3 {
		t.Errorf("数据集不符: source=%s symbol=%s bars=%d", ds.Source, ds.Symbol, len(ds.Series))
	}

	cfg.Data.CSVPath = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := LoadDataset(context.Background(), cfg, nil, time.Now()); err == nil {
		t.Error("文件不存在应该报错")
	}
}
