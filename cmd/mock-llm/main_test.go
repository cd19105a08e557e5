package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietServer(fixtures map[string][]string) *server {
	return newServer(fixtures, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
}

func TestLoadFixtures_MixedFormats(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-itinerary.json", `{"morning":{"activity":"游览西湖"}}`)
	writeFixture(t, dir, "mock-analysis.md", "# 杭州\n\n西湖是杭州的名片。\n")
	writeFixture(t, dir, "nested/mock-tips.txt", "1. 提前预订门票\n")
	writeFixture(t, dir, "README", "ignored")

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	if len(fixtures) != 3 {
		t.Fatalf("expected 3 models, got %d: %v", len(fixtures), fixtures)
	}
	if got := fixtures["mock-analysis"][0]; got != "# 杭州\n\n西湖是杭州的名片。" {
		t.Errorf("trailing newlines should be trimmed, got %q", got)
	}
	if _, ok := fixtures["mock-tips"]; !ok {
		t.Error("fixtures in subdirectories should load")
	}
}

func TestLoadFixtures_Sequential(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-itinerary.2.json", `{"day":2}`)
	writeFixture(t, dir, "mock-itinerary.10.json", `{"day":10}`)
	writeFixture(t, dir, "mock-itinerary.1.json", `{"day":1}`)
	writeFixture(t, dir, "mock-itinerary.json", `{"day":"fallback"}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	seq := fixtures["mock-itinerary"]
	want := []string{`{"day":1}`, `{"day":2}`, `{"day":10}`, `{"day":"fallback"}`}
	if len(seq) != len(want) {
		t.Fatalf("expected %d fixtures, got %d", len(want), len(seq))
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("fixture[%d] = %s, want %s", i, seq[i], want[i])
		}
	}
}

func TestLoadFixtures_Errors(t *testing.T) {
	t.Run("empty dir", func(t *testing.T) {
		if _, err := loadFixtures(t.TempDir()); err == nil {
			t.Error("expected error for empty directory")
		}
	})
	t.Run("invalid json", func(t *testing.T) {
		dir := t.TempDir()
		writeFixture(t, dir, "mock-itinerary.json", `{not json`)
		if _, err := loadFixtures(dir); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})
	t.Run("text is not validated", func(t *testing.T) {
		dir := t.TempDir()
		writeFixture(t, dir, "mock-tips.txt", `{not json`)
		if _, err := loadFixtures(dir); err != nil {
			t.Errorf("text fixture rejected: %v", err)
		}
	})
	t.Run("duplicate base", func(t *testing.T) {
		dir := t.TempDir()
		writeFixture(t, dir, "mock-tips.txt", "a")
		writeFixture(t, dir, "mock-tips.md", "b")
		if _, err := loadFixtures(dir); err == nil {
			t.Error("expected error for duplicate model")
		}
	})
}

func complete(t *testing.T, h http.Handler, model string) (int, string) {
	t.Helper()
	body := `{"model":"` + model + `","messages":[{"role":"system","content":"你是旅行顾问"},{"role":"user","content":"杭州"}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		return rec.Code, ""
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	return rec.Code, resp.Choices[0].Message.Content
}

func TestChatCompletions_Sequence(t *testing.T) {
	s := quietServer(map[string][]string{
		"mock-itinerary": {"first", "second", "base"},
	})
	h := s.routes()

	var got []string
	for i := 0; i < 5; i++ {
		_, content := complete(t, h, "mock-itinerary")
		got = append(got, content)
	}
	want := []string{"first", "second", "base", "base", "base"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i+1, got[i], want[i])
		}
	}
}

func TestChatCompletions_PrefixFallbackAndMissing(t *testing.T) {
	s := quietServer(map[string][]string{"tips": {"多喝水"}})
	h := s.routes()

	if code, content := complete(t, h, "mock-tips"); code != http.StatusOK || content != "多喝水" {
		t.Errorf("mock- prefix lookup: code=%d content=%q", code, content)
	}
	if code, _ := complete(t, h, "gpt-4o"); code != http.StatusNotFound {
		t.Errorf("unknown model: code=%d, want 404", code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: code=%d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: code=%d, want 405", rec.Code)
	}
}

func TestStatsAndRequests(t *testing.T) {
	s := quietServer(map[string][]string{
		"mock-analysis": {"分析"},
		"mock-tips":     {"贴士"},
	})
	h := s.routes()
	complete(t, h, "mock-analysis")
	complete(t, h, "mock-analysis")
	complete(t, h, "mock-tips")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats struct {
		Total   int64          `json:"total_calls"`
		ByModel map[string]int `json:"calls_by_model"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 3 || stats.ByModel["mock-analysis"] != 2 || stats.ByModel["mock-tips"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests?model=mock-analysis&call=2", nil))
	var captured struct {
		ByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &captured); err != nil {
		t.Fatalf("decode requests: %v", err)
	}
	reqs := captured.ByModel["mock-analysis"]
	if len(captured.ByModel) != 1 || len(reqs) != 1 {
		t.Fatalf("expected one captured request, got %+v", captured.ByModel)
	}
	if reqs[0].CallIndex != 2 || reqs[0].Messages[1].Content != "杭州" {
		t.Errorf("unexpected capture: %+v", reqs[0])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests?call=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad call filter: code=%d, want 400", rec.Code)
	}
}

func TestModelsAndHealth(t *testing.T) {
	h := quietServer(map[string][]string{"b": {"x"}, "a": {"y"}}).routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0].ID != "a" || list.Data[1].ID != "b" {
		t.Errorf("models should be sorted: %+v", list.Data)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health: code=%d body=%s", rec.Code, rec.Body.String())
	}
}
