package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveCompile("wesl-rs", "ok", 20*time.Millisecond)
	m.ObserveCompile("wesl-rs", "failure", time.Millisecond)
	m.ObserveShare("save", nil)
	m.ObserveShare("load", errors.New("down"))
	m.StoreMigrated()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.SnapshotLoaded("abc", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, line := range []string{
		`weslplay_compiles_total{backend="wesl-rs",outcome="ok"} 1`,
		`weslplay_share_ops_total{op="load",outcome="error"} 1`,
		`weslplay_sessions_active 1`,
		`weslplay_snapshot_store_total{result="miss"} 1`,
		`weslplay_store_migrations_total 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), line) {
			t.Errorf("exposition lacks %s", line)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")
	log.Info("dropped")
	log.Warn("kept", "k", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not a single JSON record: %q", buf.String())
	}
	if rec["msg"] != "kept" {
		t.Fatalf("record = %v", rec)
	}
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("ParseLevel")
	}
}
