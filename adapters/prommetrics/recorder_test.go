package prommetrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountsByLabels(t *testing.T) {
	recorder := New(prometheus.NewRegistry(), WithNamespace("test"))
	ctx := context.Background()

	tags := map[string]string{"operation": "complete_install", "status": "failure", "code": core.ServiceErrorSignatureInvalid}
	recorder.IncCounter(ctx, core.MetricOperationTotal, 1, tags)
	recorder.IncCounter(ctx, core.MetricOperationTotal, 2, tags)
	recorder.IncCounter(ctx, core.MetricOperationTotal, 1, map[string]string{"operation": "begin_install", "status": "success", "code": ""})

	entry := recorder.counters["shopinstall_operation_total"]
	if entry == nil {
		t.Fatalf("expected counter to be registered")
	}
	got := testutil.ToFloat64(entry.vec.WithLabelValues(core.ServiceErrorSignatureInvalid, "complete_install", "failure"))
	if got != 3 {
		t.Fatalf("expected counter value 3, got %v", got)
	}
	if count := testutil.CollectAndCount(entry.vec); count != 2 {
		t.Fatalf("expected two label series, got %d", count)
	}
}

func TestRecorder_MissingLabelsDefaultToEmpty(t *testing.T) {
	recorder := New(nil)
	ctx := context.Background()

	recorder.IncCounter(ctx, "rejected", 1, map[string]string{"operation": "x", "status": "failure"})
	recorder.IncCounter(ctx, "rejected", 1, map[string]string{"operation": "x"})

	entry := recorder.counters["rejected"]
	if got := testutil.ToFloat64(entry.vec.WithLabelValues("x", "")); got != 1 {
		t.Fatalf("expected one observation with empty status, got %v", got)
	}
}

func TestRecorder_HistogramAndHandler(t *testing.T) {
	recorder := New(prometheus.NewRegistry())
	recorder.ObserveHistogram(context.Background(), core.MetricOperationDurationMS, 42, map[string]string{"operation": "begin_install"})

	server := httptest.NewServer(recorder.Handler())
	defer server.Close()

	response, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	if !strings.Contains(string(body), `shopinstall_operation_duration_ms_count{operation="begin_install"} 1`) {
		t.Fatalf("expected histogram series in scrape, got %s", body)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"shopinstall.operation.total": "shopinstall_operation_total",
		"9lives":                      "_lives",
		"ok_name":                     "ok_name",
	}
	for input, want := range cases {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", input, want, got)
		}
	}
}
