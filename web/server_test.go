package web

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"macross/backtest"
	"macross/cache"
	"macross/config"
	"macross/database"
	"macross/i18n"
	"macross/marketdata"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func waveSeries(n int) backtest.PriceSeries {
	series := make(backtest.PriceSeries, n)
	for i := range series {
		series[i] = backtest.Bar{
			Timestamp: testStart.Add(time.Duration(i) * 5 * time.Minute),
			Close:     141 + 2*math.Sin(float64(i)/7),
		}
	}
	return series
}

func setupTestServices(t *testing.T, withDB bool) *Services {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := i18n.Init("ja-JP"); err != nil {
		t.Fatalf("初始化 i18n 失败: %v", err)
	}

	cfg := config.CreateDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Search = config.SearchConfig{
		ShortMin: 5, ShortMax: 10, ShortStep: 5,
		LongMin: 20, LongMax: 30, LongStep: 10,
		Workers: 2, TopN: 10,
	}

	svc := &Services{
		Config:  cfg,
		Version: "test",
		Cache:   cache.NewMemoryCache(),
		Loader: func(ctx context.Context) (*marketdata.Dataset, error) {
			return &marketdata.Dataset{Source: "test", Symbol: "USDJPY=X", Interval: "5m", Series: waveSeries(300)}, nil
		},
	}
	if withDB {
		db, err := database.NewGormDatabase(&database.DBConfig{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "runs.db")})
		if err != nil {
			t.Fatalf("创建数据库失败: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		svc.DB = db
	}
	return svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestRunBacktestWithInlineBars(t *testing.T) {
	r := NewRouter(setupTestServices(t, true), false)

	var bars []BarInput
	for i, c := range []float64{100, 101, 99, 102, 103} {
		bars = append(bars, BarInput{
			Timestamp: testStart.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			Close:     c,
		})
	}
	req := BacktestRequest{
		ShortWindow: intPtr(2), LongWindow: intPtr(3),
		InitialCapital: floatPtr(1000), FeeRate: floatPtr(0), TradeSize: floatPtr(1),
		Bars: bars,
	}

	w := doJSON(t, r, http.MethodPost, "/api/backtest/run", req)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码: 期望 200, 得到 %d: %s", w.Code, w.Body.String())
	}
	var resp BacktestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Result == nil || resp.RunID == 0 {
		t.Fatalf("响应不符: %s", w.Body.String())
	}
	if resp.Result.TradeCount != 1 || resp.Result.FinalBalance != 1000 {
		t.Errorf("结果不符: trades=%d balance=%v", resp.Result.TradeCount, resp.Result.FinalBalance)
	}
	if len(resp.Result.EquityCurve) != 0 {
		t.Error("未要求时不应返回权益曲线")
	}

	w = doJSON(t, r, http.MethodGet, "/api/backtest/runs", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"mode":"api"`) {
		t.Errorf("记录列表不符: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/backtest/runs/1", nil)
	var runResp struct {
		Success bool                 `json:"success"`
		Run     database.BacktestRun `json:"run"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &runResp); err != nil || w.Code != http.StatusOK {
		t.Fatalf("读取记录失败: %d %s", w.Code, w.Body.String())
	}
	if len(runResp.Run.Trades) != 1 || runResp.Run.Source != "request" {
		t.Errorf("记录不符: %+v", runResp.Run)
	}

	if w := doJSON(t, r, http.MethodGet, "/api/backtest/runs/999", nil); w.Code != http.StatusNotFound {
		t.Errorf("不存在的记录: 期望 404, 得到 %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/backtest/runs/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("非法 id: 期望 400, 得到 %d", w.Code)
	}
}

func TestRunBacktestErrors(t *testing.T) {
	r := NewRouter(setupTestServices(t, false), false)

	w := doJSON(t, r, http.MethodPost, "/api/backtest/run", BacktestRequest{ShortWindow: intPtr(20), LongWindow: intPtr(20)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("short=long: 期望 400, 得到 %d", w.Code)
	}

	bad := BacktestRequest{Bars: []BarInput{{Timestamp: "yesterday", Close: 1}}}
	if w := doJSON(t, r, http.MethodPost, "/api/backtest/run", bad); w.Code != http.StatusBadRequest {
		t.Errorf("非法时间: 期望 400, 得到 %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/backtest/run", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("非法 JSON: 期望 400, 得到 %d", rec.Code)
	}

	if w := doJSON(t, r, http.MethodGet, "/api/backtest/runs", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("数据库未启用: 期望 503, 得到 %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/backtest/runs/1", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "Database is disabled") {
		t.Errorf("应按 Accept-Language 返回英文消息, 得到 %s", rec.Body.String())
	}
}

func TestRunSearchAndCache(t *testing.T) {
	svc := setupTestServices(t, true)
	r := NewRouter(svc, false)

	w := doJSON(t, r, http.MethodPost, "/api/backtest/search", SearchRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码: 期望 200, 得到 %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary == nil || resp.Summary.Evaluated != 4 || resp.SearchID == 0 {
		t.Fatalf("搜索结果不符: %s", w.Body.String())
	}

	want, err := backtest.Evaluate(waveSeries(300), resp.Summary.Params(*resp.Summary.Best))
	if err != nil || want != resp.Summary.Best.Score {
		t.Errorf("最佳评分: 期望 %v, 得到 %v (%v)", want, resp.Summary.Best.Score, err)
	}

	w = doJSON(t, r, http.MethodGet, "/api/cache/stats", nil)
	var stats struct {
		Scores cache.Stats `json:"scores"`
	}
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Scores.Keys != 4 {
		t.Errorf("缓存键数量: 期望 4, 得到 %d", stats.Scores.Keys)
	}

	key := cache.Key(waveSeries(300), resp.Summary.Params(*resp.Summary.Best))
	if w := doJSON(t, r, http.MethodDelete, "/api/cache/"+key, nil); w.Code != http.StatusOK {
		t.Errorf("删除缓存: 期望 200, 得到 %d", w.Code)
	}
	if st, _ := svc.Cache.Stats(context.Background()); st.Keys != 3 {
		t.Errorf("删除后键数量: 期望 3, 得到 %d", st.Keys)
	}

	badGrid := SearchRequest{Grid: &config.SearchConfig{ShortMin: 0, ShortMax: 5, LongMin: 10, LongMax: 20}}
	if w := doJSON(t, r, http.MethodPost, "/api/backtest/search", badGrid); w.Code != http.StatusBadRequest {
		t.Errorf("非法网格: 期望 400, 得到 %d", w.Code)
	}
}

func TestLatestStatusAndMetrics(t *testing.T) {
	r := NewRouter(setupTestServices(t, false), false)

	w := doJSON(t, r, http.MethodGet, "/api/latest", nil)
	var latest struct {
		Close  float64 `json:"close"`
		Symbol string  `json:"symbol"`
	}
	json.Unmarshal(w.Body.Bytes(), &latest)
	series := waveSeries(300)
	if w.Code != http.StatusOK || latest.Close != series[len(series)-1].Close || latest.Symbol != "USDJPY=X" {
		t.Errorf("最新价不符: %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, r, http.MethodGet, "/api/status", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version":"test"`) {
		t.Errorf("状态接口不符: %d %s", w.Code, w.Body.String())
	}

	doJSON(t, r, http.MethodPost, "/api/backtest/run", BacktestRequest{ShortWindow: intPtr(5), LongWindow: intPtr(20)})
	w = doJSON(t, r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "macross_backtest_runs_total") {
		t.Errorf("metrics 输出缺少回测指标: %d", w.Code)
	}
}

func TestSearchWebSocket(t *testing.T) {
	srv := httptest.NewServer(NewRouter(setupTestServices(t, false), false))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/search"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(SearchRequest{}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	progress := 0
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("读取消息失败: %v (已收到 %d 条进度)", err, progress)
		}
		switch msg.Type {
		case "progress":
			progress++
			if msg.Total != 4 || msg.Result == nil {
				t.Errorf("进度消息不符: %+v", msg)
			}
		case "summary":
			if progress != 4 {
				t.Errorf("进度消息数量: 期望 4, 得到 %d", progress)
			}
			if msg.Summary == nil || msg.Summary.Best == nil {
				t.Error("汇总消息缺少结果")
			}
			return
		default:
			t.Fatalf("意外的消息: %+v", msg)
		}
	}
}

func TestParseAcceptLanguage(t *testing.T) {
	tests := map[string]string{
		"en-US,en;q=0.9":  "en-US",
		"zh-CN,zh;q=0.9":  "zh-CN",
		"ja;q=0.8":        "ja-JP",
	}
	for in, want := range tests {
		if got := parseAcceptLanguage(in); got != want {
			t.Errorf("parseAcceptLanguage(%q): 期望 %s, 得到 %s", in, want, got)
		}
	}
}
