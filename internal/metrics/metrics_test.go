package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルに一致するメトリクスを返す。見つからない場合はnilを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordUpstreamRequest_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("tmdb", OutcomeSuccess)
	c.RecordUpstreamRequest("tmdb", OutcomeSuccess)
	c.RecordUpstreamRequest("tmdb", OutcomeFailure)

	m := findMetric(t, reg, "mediafav_upstream_requests_total", map[string]string{"source": "tmdb", "outcome": "success"})
	if m == nil {
		t.Fatal("success counter not found")
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("success = %v, want 2", v)
	}

	m = findMetric(t, reg, "mediafav_upstream_requests_total", map[string]string{"source": "tmdb", "outcome": "failure"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("failure counter = %v, want 1", m)
	}
}

func TestRecordUpstreamLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency("openlibrary", 150*time.Millisecond)

	m := findMetric(t, reg, "mediafav_upstream_latency_seconds", map[string]string{"source": "openlibrary"})
	if m == nil {
		t.Fatal("latency histogram not found")
	}
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
}

func TestRecordBreakerState_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBreakerState("tmdb", true)
	m := findMetric(t, reg, "mediafav_upstream_breaker_open", map[string]string{"source": "tmdb"})
	if m == nil || m.GetGauge().GetValue() != 1 {
		t.Fatalf("breaker gauge = %v, want 1", m)
	}

	c.RecordBreakerState("tmdb", false)
	m = findMetric(t, reg, "mediafav_upstream_breaker_open", map[string]string{"source": "tmdb"})
	if m.GetGauge().GetValue() != 0 {
		t.Errorf("breaker gauge = %v, want 0", m.GetGauge().GetValue())
	}
}

func TestRecordFavoriteAdded_LabelsKindAndCreated(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFavoriteAdded("book", true)
	c.RecordFavoriteAdded("book", false)
	c.RecordFavoriteAdded("book", false)

	m := findMetric(t, reg, "mediafav_favorites_added_total", map[string]string{"kind": "book", "created": "false"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("created=false counter = %v, want 2", m)
	}
}

func TestRecordFavoritesRemovedAndDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFavoritesRemoved(3)
	c.RecordItemsDropped("tmdb", 2)

	if m := findMetric(t, reg, "mediafav_favorites_removed_total", nil); m == nil || m.GetCounter().GetValue() != 3 {
		t.Errorf("removed counter = %v, want 3", m)
	}
	if m := findMetric(t, reg, "mediafav_normalize_dropped_total", map[string]string{"source": "tmdb"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("dropped counter = %v, want 2", m)
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	if m := findMetric(t, reg, "mediafav_http_status_total", map[string]string{"status_code": "200"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("200 counter = %v, want 2", m)
	}
	if m := findMetric(t, reg, "mediafav_http_status_total", map[string]string{"status_code": "404"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("404 counter = %v, want 1", m)
	}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリへの登録が衝突しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	NewCollector(prometheus.NewRegistry())
	NewCollector(prometheus.NewRegistry())
}
