package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSettingText(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: `"Strepsil"`, want: "Strepsil", ok: true},
		{raw: `5`, want: "5", ok: true},
		{raw: `true`, want: "true", ok: true},
		{raw: `null`, ok: false},
		{raw: ``, ok: false},
	}
	for _, tc := range cases {
		got, ok := settingText(json.RawMessage(tc.raw))
		if ok != tc.ok || got != tc.want {
			t.Fatalf("settingText(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestQueryPositiveInt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=3&limit=-2&offset=x", nil)

	if got := queryPositiveInt(c, "page", 1); got != 3 {
		t.Fatalf("expected page 3, got %d", got)
	}
	if got := queryPositiveInt(c, "limit", 50); got != 50 {
		t.Fatalf("expected fallback for negative limit, got %d", got)
	}
	if got := queryPositiveInt(c, "offset", 7); got != 7 {
		t.Fatalf("expected fallback for non-numeric value, got %d", got)
	}
	if got := queryPositiveInt(c, "missing", 9); got != 9 {
		t.Fatalf("expected fallback for missing value, got %d", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	if got := retryAfterSeconds(time.Time{}); got != 1 {
		t.Fatalf("expected 1 for zero reset, got %d", got)
	}
	if got := retryAfterSeconds(time.Now().Add(-time.Minute)); got != 1 {
		t.Fatalf("expected 1 for past reset, got %d", got)
	}
	if got := retryAfterSeconds(time.Now().Add(3 * time.Second)); got < 2 || got > 3 {
		t.Fatalf("expected about 3 seconds, got %d", got)
	}
}
