package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"litman/metrics"
	"litman/models"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestObserveSyncCountsResults(t *testing.T) {
	m := metrics.NewMetrics()
	m.ObserveSync(metrics.RolePush, time.Now(), nil)
	m.ObserveSync(metrics.RolePush, time.Now(), errors.New("boom"))
	m.AddDiff("sent", models.DiffCounts{Inserted: 3, LinksDeleted: 1})

	out := scrape(t, m)
	for _, want := range []string{
		`litman_sync_operations_total{result="success",role="push"} 1`,
		`litman_sync_operations_total{result="failure",role="push"} 1`,
		`litman_sync_rows_total{direction="sent",op="insert"} 3`,
		`litman_sync_rows_total{direction="sent",op="link_delete"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveSync(metrics.RoleMerge, time.Now(), nil)
	m.AddDiff("received", models.DiffCounts{Inserted: 1})
	m.ObservePayload("sent", 10)
	m.FileFetched(false)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestMetricsServerServesHealth(t *testing.T) {
	srv := metrics.NewServer("127.0.0.1:0", metrics.NewMetrics())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
