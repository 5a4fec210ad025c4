package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/cache"
	"github.com/router-for-me/strepsil/internal/config"
	"github.com/router-for-me/strepsil/internal/db"
	"github.com/router-for-me/strepsil/internal/metrics"
	"github.com/router-for-me/strepsil/internal/modelreference"
	"github.com/router-for-me/strepsil/internal/models"
	"github.com/router-for-me/strepsil/internal/provider"
	"github.com/router-for-me/strepsil/internal/ratelimit"
	"github.com/router-for-me/strepsil/internal/recorder"
	"github.com/router-for-me/strepsil/internal/security"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	"github.com/router-for-me/strepsil/internal/store"
)

const testJWTSecret = "api-test-jwt-secret"

type fakeClient struct {
	resp provider.Response
	err  error
}

func (f *fakeClient) Endpoint() string { return "/v1/chat/completions" }

func (f *fakeClient) Invoke(_ context.Context, _ provider.Request) (provider.Response, error) {
	return f.resp, f.err
}

func (f *fakeClient) TestKey(_ context.Context, apiKey, _ string) error {
	if apiKey == "bad" {
		return errors.New("invalid api key")
	}
	return nil
}

type testServer struct {
	router *gin.Engine
	store  *store.Store
	client *fakeClient
	token  string
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	cipher, err := security.NewSecretCipher("api-test-key")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	providerCache, err := cache.NewProviderCache(16, time.Minute)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(providerCache.Close)

	s := store.New(conn, cipher, providerCache)
	snap := internalsettings.NewSnapshot()
	if errRefresh := s.RefreshSnapshot(context.Background(), snap); errRefresh != nil {
		t.Fatalf("refresh snapshot: %v", errRefresh)
	}

	client := &fakeClient{}
	registry := provider.NewRegistry(nil)
	registry.Register("OpenAI", client)

	reg := metrics.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	fixedNow := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewManager(ratelimit.SnapshotProvider(snap), func() time.Time { return fixedNow }, nil)
	t.Cleanup(func() { _ = limiter.Close() })

	r := gin.New()
	RegisterRoutes(r, Deps{
		Store:     s,
		Snapshot:  snap,
		Recorder:  recorder.New(s, registry, m, time.Second),
		Providers: registry,
		Limiter:   limiter,
		Gatherer:  reg,
		JWT:       config.JWTConfig{Secret: secret, Expiry: time.Hour},
		DBInfo:    db.Info{Type: "sqlite"},
		Version:   "test",
	})

	ts := &testServer{router: r, store: s, client: client}
	if secret != "" {
		token, errToken := security.IssueToken(secret, "tester", time.Hour, time.Now())
		if errToken != nil {
			t.Fatalf("issue token: %v", errToken)
		}
		ts.token = token
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func (ts *testServer) configureOpenAI(t *testing.T) {
	t.Helper()
	w := ts.do(t, http.MethodPut, "/api/providers/OpenAI", map[string]any{"api_key": "sk-test", "active": true})
	expectStatus(t, w, http.StatusOK)
}

func TestBearerGuard(t *testing.T) {
	ts := newTestServer(t, testJWTSecret)

	w := ts.do(t, http.MethodGet, "/api/ai-calls", nil)
	expectStatus(t, w, http.StatusOK)

	ts.token = ""
	w = ts.do(t, http.MethodGet, "/api/ai-calls", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	ts.token = "not-a-jwt"
	w = ts.do(t, http.MethodGet, "/api/ai-calls", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	ts.token = ""
	w = ts.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, w, http.StatusOK)
	health := decodeBody(t, w)
	if health["status"] != "healthy" || health["database"] != "connected" {
		t.Fatalf("unexpected health body: %v", health)
	}

	w = ts.do(t, http.MethodGet, "/api/setup/status", nil)
	expectStatus(t, w, http.StatusOK)
	status := decodeBody(t, w)
	if status["setupCompleted"] != false {
		t.Fatalf("expected setupCompleted=false, got %v", status["setupCompleted"])
	}
	if providers, _ := status["providers"].([]any); len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %v", status["providers"])
	}
}

func TestAICallLifecycle(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/ai-calls", map[string]any{"provider": "OpenAI"})
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPost, "/api/ai-calls", map[string]any{
		"provider":           "OpenAI",
		"model_type":         "gpt-4o",
		"endpoint":           "/v1/chat/completions",
		"prompt":             "user: hello",
		"tokens_in":          1000,
		"tokens_out":         500,
		"cost_per_token_in":  0.000001,
		"cost_per_token_out": 0.000002,
		"latency_ms":         120,
		"metadata":           map[string]any{"source": "sdk"},
	})
	expectStatus(t, w, http.StatusCreated)
	created := decodeBody(t, w)
	call, _ := created["aiCall"].(map[string]any)
	id, _ := call["id"].(string)
	if id == "" {
		t.Fatalf("expected generated id, got %v", created)
	}
	if total, _ := call["total_cost"].(float64); !almostEqual(total, 0.002) {
		t.Fatalf("expected total_cost 0.002, got %v", call["total_cost"])
	}
	if call["status"] != "success" {
		t.Fatalf("expected default status success, got %v", call["status"])
	}

	w = ts.do(t, http.MethodGet, "/api/ai-calls/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	fetched, _ := decodeBody(t, w)["aiCall"].(map[string]any)
	if meta, _ := fetched["metadata"].(map[string]any); meta["source"] != "sdk" {
		t.Fatalf("expected metadata round trip, got %v", fetched["metadata"])
	}

	w = ts.do(t, http.MethodPatch, "/api/ai-calls/"+id+"/status", map[string]any{"status": "bogus"})
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPatch, "/api/ai-calls/"+id+"/status", map[string]any{"status": "retry", "error_message": "timeout upstream"})
	expectStatus(t, w, http.StatusOK)
	patched, _ := decodeBody(t, w)["aiCall"].(map[string]any)
	if patched["status"] != "retry" || patched["error_message"] != "timeout upstream" {
		t.Fatalf("unexpected patched call: %v", patched)
	}
	if total, _ := patched["total_cost"].(float64); !almostEqual(total, 0.002) {
		t.Fatalf("status patch changed total_cost: %v", patched["total_cost"])
	}

	w = ts.do(t, http.MethodPatch, "/api/ai-calls/missing/status", map[string]any{"status": "retry"})
	expectStatus(t, w, http.StatusNotFound)

	w = ts.do(t, http.MethodGet, "/api/ai-calls?status=retry", nil)
	expectStatus(t, w, http.StatusOK)
	list := decodeBody(t, w)
	pagination, _ := list["pagination"].(map[string]any)
	if pagination["total"] != float64(1) || pagination["pages"] != float64(1) || pagination["limit"] != float64(50) {
		t.Fatalf("unexpected pagination: %v", pagination)
	}

	w = ts.do(t, http.MethodGet, "/api/ai-calls?status=unknown", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodDelete, "/api/ai-calls/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodDelete, "/api/ai-calls/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodGet, "/api/ai-calls/"+id, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestAICallCreateRejectsNegativeInput(t *testing.T) {
	ts := newTestServer(t, "")
	w := ts.do(t, http.MethodPost, "/api/ai-calls", map[string]any{
		"provider":   "OpenAI",
		"model_type": "gpt-4o",
		"endpoint":   "/v1/chat/completions",
		"prompt":     "user: hi",
		"tokens_in":  -1,
	})
	expectStatus(t, w, http.StatusBadRequest)
}

func insertCall(t *testing.T, s *store.Store, id, provider, model string, status models.AICallStatus, cost float64, created time.Time) {
	t.Helper()
	call := &models.AICall{
		ID:        id,
		Provider:  provider,
		ModelType: model,
		Endpoint:  "/v1/chat/completions",
		Prompt:    "user: hi",
		TokensIn:  10,
		TokensOut: 20,
		TotalCost: cost,
		LatencyMS: 100,
		Status:    status,
		CreatedAt: created,
	}
	if err := s.InsertCall(context.Background(), call); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestBulkDeleteCountsRemovedRows(t *testing.T) {
	ts := newTestServer(t, "")
	now := time.Now().UTC()
	insertCall(t, ts.store, "a", "OpenAI", "gpt-4o", models.AICallStatusSuccess, 1, now)
	insertCall(t, ts.store, "b", "OpenAI", "gpt-4o", models.AICallStatusSuccess, 1, now)

	w := ts.do(t, http.MethodPost, "/api/ai-calls/bulk/delete", map[string]any{"ids": []string{}})
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPost, "/api/ai-calls/bulk/delete", map[string]any{"ids": []string{"a", "b", "missing"}})
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["deletedCount"]; got != float64(2) {
		t.Fatalf("expected deletedCount 2, got %v", got)
	}
}

func TestAnalyticsSummary(t *testing.T) {
	ts := newTestServer(t, "")
	day1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	insertCall(t, ts.store, "a", "OpenAI", "gpt-4o", models.AICallStatusSuccess, 1.5, day1)
	insertCall(t, ts.store, "b", "Anthropic", "claude-3-opus-20240229", models.AICallStatusFailure, 0, day1)
	insertCall(t, ts.store, "c", "OpenAI", "gpt-4o", models.AICallStatusSuccess, 2.5, day2)

	w := ts.do(t, http.MethodGet, "/api/ai-calls/analytics/summary", nil)
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)

	summary, _ := body["summary"].(map[string]any)
	if summary["totalCalls"] != float64(3) || summary["totalCost"] != float64(4) || summary["averageLatency"] != float64(100) {
		t.Fatalf("unexpected summary: %v", summary)
	}
	breakdowns, _ := body["breakdowns"].(map[string]any)
	statuses, _ := breakdowns["status"].(map[string]any)
	if statuses["success"] != float64(2) || statuses["failure"] != float64(1) {
		t.Fatalf("unexpected status breakdown: %v", statuses)
	}
	modelCounts, _ := breakdowns["models"].(map[string]any)
	if modelCounts["gpt-4o"] != float64(2) || modelCounts["claude-3-opus-20240229"] != float64(1) {
		t.Fatalf("unexpected model breakdown: %v", modelCounts)
	}
	providerCounts, _ := breakdowns["providers"].(map[string]any)
	if providerCounts["OpenAI"] != float64(2) || providerCounts["Anthropic"] != float64(1) {
		t.Fatalf("unexpected provider breakdown: %v", providerCounts)
	}
	daily, _ := body["dailyUsage"].(map[string]any)
	first, _ := daily["2024-03-01"].(map[string]any)
	if first["calls"] != float64(2) || first["cost"] != float64(1.5) {
		t.Fatalf("unexpected daily usage: %v", daily)
	}
	raw := w.Body.String()
	if i, j := strings.Index(raw, `"2024-03-01"`), strings.Index(raw, `"2024-03-02"`); i < 0 || j < i {
		t.Fatalf("expected daily usage sorted by date, got %s", raw)
	}

	w = ts.do(t, http.MethodGet, "/api/ai-calls/analytics/summary?provider=Anthropic", nil)
	expectStatus(t, w, http.StatusOK)
	summary, _ = decodeBody(t, w)["summary"].(map[string]any)
	if summary["totalCalls"] != float64(1) {
		t.Fatalf("expected provider filter to apply, got %v", summary)
	}
}

func TestReports(t *testing.T) {
	ts := newTestServer(t, "")
	now := time.Now().UTC()
	insertCall(t, ts.store, "a", "OpenAI", "gpt-4o", models.AICallStatusSuccess, 1, now.Add(-time.Minute))
	insertCall(t, ts.store, "b", "Anthropic", "claude-3-opus-20240229", models.AICallStatusFailure, 0.5, now.Add(-2*time.Minute))

	w := ts.do(t, http.MethodGet, "/api/reports/billing?format=xml", nil)
	expectStatus(t, w, http.StatusOK)
	billing := decodeBody(t, w)
	summary, _ := billing["summary"].(map[string]any)
	if summary["total_calls"] != float64(2) || summary["total_tokens"] != float64(60) {
		t.Fatalf("unexpected billing summary: %v", summary)
	}
	dateRange, _ := summary["date_range"].(map[string]any)
	if dateRange["start"] != "All time" {
		t.Fatalf("expected open range, got %v", dateRange)
	}

	w = ts.do(t, http.MethodGet, "/api/reports/billing?format=csv", nil)
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "billing-report-") || !strings.HasSuffix(cd, `.csv"`) {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n"); len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}

	w = ts.do(t, http.MethodGet, "/api/reports/billing?format=pdf", nil)
	expectStatus(t, w, http.StatusOK)
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf body")
	}

	w = ts.do(t, http.MethodGet, "/api/reports/cost-breakdown?group_by=provider", nil)
	expectStatus(t, w, http.StatusOK)
	breakdown := decodeBody(t, w)
	groups, _ := breakdown["breakdown"].(map[string]any)
	openai, _ := groups["OpenAI"].(map[string]any)
	if openai["calls"] != float64(1) || openai["cost"] != float64(1) {
		t.Fatalf("unexpected provider group: %v", groups)
	}
	if breakdown["total_cost"] != float64(1.5) {
		t.Fatalf("unexpected total cost %v", breakdown["total_cost"])
	}

	w = ts.do(t, http.MethodGet, "/api/reports/cost-breakdown?group_by=user", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodGet, "/api/reports/trends?period=weekly", nil)
	expectStatus(t, w, http.StatusBadRequest)
	w = ts.do(t, http.MethodGet, "/api/reports/trends?days=-1", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodGet, "/api/reports/trends", nil)
	expectStatus(t, w, http.StatusOK)
	trends := decodeBody(t, w)
	if trends["period"] != "daily" || trends["days"] != float64(30) {
		t.Fatalf("unexpected trend params: %v", trends)
	}
	buckets, _ := trends["trends"].(map[string]any)
	var calls, errs float64
	for _, raw := range buckets {
		b, _ := raw.(map[string]any)
		calls += b["calls"].(float64)
		errs += b["errors"].(float64)
	}
	if calls != 2 || errs != 1 {
		t.Fatalf("expected 2 calls and 1 error in trends, got %v", buckets)
	}
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, "")
	messages := []map[string]string{{"role": "user", "content": "hello"}}

	w := ts.do(t, http.MethodPost, "/api/chat", map[string]any{"provider": "OpenAI"})
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"provider": "OpenAI", "model": "gpt-4o-mini", "messages": messages})
	expectStatus(t, w, http.StatusBadRequest)
	if got := decodeBody(t, w)["error"]; got != "OpenAI API key not configured" {
		t.Fatalf("unexpected error %v", got)
	}

	ts.configureOpenAI(t)
	text := "hi there"
	ts.client.resp = provider.Response{Text: &text, Usage: provider.Usage{PromptTokens: 100, CompletionTokens: 50}}
	w = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"provider": "OpenAI", "model": "gpt-4o-mini", "messages": messages})
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["response"] != "hi there" || body["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected chat body: %v", body)
	}
	usage, _ := body["usage"].(map[string]any)
	if usage["total_tokens"] != float64(150) {
		t.Fatalf("unexpected usage: %v", usage)
	}
	if cost, _ := body["cost"].(float64); !almostEqual(cost, 0.000045) {
		t.Fatalf("expected cost 0.000045, got %v", body["cost"])
	}

	ts.client.resp = provider.Response{}
	ts.client.err = errors.New("upstream exploded")
	w = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"provider": "OpenAI", "model": "gpt-4o-mini", "messages": messages})
	expectStatus(t, w, http.StatusInternalServerError)
	failed := decodeBody(t, w)
	if failed["error"] != "AI API call failed" || failed["message"] != "upstream exploded" {
		t.Fatalf("unexpected failure body: %v", failed)
	}
	callID, _ := failed["callId"].(string)
	w = ts.do(t, http.MethodGet, "/api/ai-calls/"+callID, nil)
	expectStatus(t, w, http.StatusOK)
	record, _ := decodeBody(t, w)["aiCall"].(map[string]any)
	if record["status"] != "failure" || record["tokens_in"] != float64(0) {
		t.Fatalf("unexpected failure record: %v", record)
	}

	w = ts.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `strepsil_ai_calls_total{model="gpt-4o-mini",provider="OpenAI",status="failure"} 1`) {
		t.Fatalf("expected failure counter in metrics output")
	}

	w = ts.do(t, http.MethodGet, "/api/chat/models/OpenAI", nil)
	expectStatus(t, w, http.StatusOK)
	if modelsList, _ := decodeBody(t, w)["models"].([]any); len(modelsList) != 4 {
		t.Fatalf("expected 4 OpenAI models, got %v", modelsList)
	}
	w = ts.do(t, http.MethodGet, "/api/chat/models/Nope", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestChatRateLimit(t *testing.T) {
	ts := newTestServer(t, "")
	ts.configureOpenAI(t)
	text := "ok"
	ts.client.resp = provider.Response{Text: &text}

	w := ts.do(t, http.MethodPut, "/api/settings/"+internalsettings.RateLimitKey, map[string]any{"value": 1})
	expectStatus(t, w, http.StatusOK)

	payload := map[string]any{
		"provider": "OpenAI",
		"model":    "gpt-4o",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}
	w = ts.do(t, http.MethodPost, "/api/chat", payload)
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodPost, "/api/chat", payload)
	expectStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestProviders(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/providers", nil)
	expectStatus(t, w, http.StatusOK)
	list, _ := decodeBody(t, w)["providers"].([]any)
	if len(list) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(list))
	}
	for _, raw := range list {
		p, _ := raw.(map[string]any)
		if _, ok := p["api_key"]; ok {
			t.Fatalf("api_key leaked in provider list: %v", p)
		}
		if p["configured"] != false {
			t.Fatalf("expected unconfigured provider, got %v", p)
		}
	}

	w = ts.do(t, http.MethodGet, "/api/providers/Mistral", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = ts.do(t, http.MethodPut, "/api/providers/OpenAI", map[string]any{
		"pricing": map[string]any{"gpt-9": map[string]float64{"input": 1, "output": 1}},
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPost, "/api/providers/OpenAI/test", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPost, "/api/providers/OpenAI/test", map[string]any{"api_key": "bad"})
	expectStatus(t, w, http.StatusOK)
	if result := decodeBody(t, w); result["success"] != false || result["error"] != "invalid api key" {
		t.Fatalf("unexpected test result: %v", result)
	}

	ts.configureOpenAI(t)
	w = ts.do(t, http.MethodPost, "/api/providers/OpenAI/test", nil)
	expectStatus(t, w, http.StatusOK)
	if result := decodeBody(t, w); result["success"] != true {
		t.Fatalf("expected stored key to pass, got %v", result)
	}

	w = ts.do(t, http.MethodGet, "/api/providers/OpenAI", nil)
	expectStatus(t, w, http.StatusOK)
	if p, _ := decodeBody(t, w)["provider"].(map[string]any); p["configured"] != true || p["active"] != true {
		t.Fatalf("expected configured active provider, got %v", p)
	}

	w = ts.do(t, http.MethodPut, "/api/providers/OpenAI", `{"api_key": null}`)
	expectStatus(t, w, http.StatusOK)
	if p, _ := decodeBody(t, w)["provider"].(map[string]any); p["configured"] != false {
		t.Fatalf("expected null api_key to clear the key, got %v", p)
	}

	w = ts.do(t, http.MethodGet, "/api/providers/Anthropic/models", nil)
	expectStatus(t, w, http.StatusOK)
	if pricing, _ := decodeBody(t, w)["pricing"].(map[string]any); len(pricing) != 3 {
		t.Fatalf("expected 3 Anthropic prices, got %v", pricing)
	}
}

func TestSuggestedPricingAndReferences(t *testing.T) {
	ts := newTestServer(t, "")
	in, out := 0.000002, 0.000008
	refs := []models.PriceReference{{
		ProviderName: "OpenAI",
		ModelName:    "gpt-4o",
		InputPrice:   &in,
		OutputPrice:  &out,
	}}
	if err := modelreference.StoreReferences(context.Background(), ts.store.DB(), refs, time.Now()); err != nil {
		t.Fatalf("store references: %v", err)
	}

	w := ts.do(t, http.MethodGet, "/api/providers/OpenAI/pricing/suggested", nil)
	expectStatus(t, w, http.StatusOK)
	pricing, _ := decodeBody(t, w)["pricing"].(map[string]any)
	rate, _ := pricing["gpt-4o"].(map[string]any)
	if len(pricing) != 1 || !almostEqual(rate["input"].(float64), in) || !almostEqual(rate["output"].(float64), out) {
		t.Fatalf("unexpected suggestion: %v", pricing)
	}

	w = ts.do(t, http.MethodGet, "/api/model-references?provider=openai", nil)
	expectStatus(t, w, http.StatusOK)
	if list, _ := decodeBody(t, w)["references"].([]any); len(list) != 1 {
		t.Fatalf("expected 1 reference, got %v", list)
	}

	w = ts.do(t, http.MethodGet, "/api/providers/OpenAI/models", nil)
	expectStatus(t, w, http.StatusOK)
	saved, _ := decodeBody(t, w)["pricing"].(map[string]any)
	if rate, _ := saved["gpt-4o"].(map[string]any); rate["input"] != 0.0000025 {
		t.Fatalf("suggestion must not change stored pricing, got %v", saved["gpt-4o"])
	}
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPut, "/api/settings/app_name", map[string]any{})
	expectStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPut, "/api/settings/app_name", map[string]any{"value": "Metering"})
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodGet, "/api/settings/app_name", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["value"]; got != "Metering" {
		t.Fatalf("expected Metering, got %v", got)
	}

	w = ts.do(t, http.MethodPut, "/api/settings/webhook_token", map[string]any{"value": "s3cret", "encrypted": true})
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodGet, "/api/settings", nil)
	expectStatus(t, w, http.StatusOK)
	all, _ := decodeBody(t, w)["settings"].(map[string]any)
	if all["webhook_token"] != "s3cret" {
		t.Fatalf("expected decrypted setting, got %v", all["webhook_token"])
	}

	w = ts.do(t, http.MethodGet, "/api/settings/missing", nil)
	expectStatus(t, w, http.StatusNotFound)

	ts.configureOpenAI(t)
	w = ts.do(t, http.MethodPost, "/api/settings/complete-setup", nil)
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodGet, "/api/setup/status", nil)
	status := decodeBody(t, w)
	if status["setupCompleted"] != true || status["providersConfigured"] != float64(1) {
		t.Fatalf("unexpected setup status: %v", status)
	}

	w = ts.do(t, http.MethodPost, "/api/settings/reset", nil)
	expectStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodGet, "/api/setup/status", nil)
	status = decodeBody(t, w)
	if status["setupCompleted"] != false || status["providersConfigured"] != float64(0) {
		t.Fatalf("expected reset setup status, got %v", status)
	}

	w = ts.do(t, http.MethodGet, "/api/settings/app/info", nil)
	expectStatus(t, w, http.StatusOK)
	info := decodeBody(t, w)
	app, _ := info["app"].(map[string]any)
	if app["name"] != "Metering" || app["version"] != internalsettings.DefaultAppVersion {
		t.Fatalf("unexpected app info: %v", app)
	}
	if stats, _ := info["stats"].(map[string]any); stats["totalCalls"] != float64(0) {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
