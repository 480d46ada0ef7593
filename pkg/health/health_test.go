package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Result
		want   Status
	}{
		{"all up", map[string]Result{"a": Up(""), "b": Up("")}, StatusUp},
		{"one degraded", map[string]Result{"a": Up(""), "b": Degraded("slow")}, StatusDegraded},
		{"one down", map[string]Result{"a": Degraded("slow"), "b": Down("dead")}, StatusDown},
		{"no checks", map[string]Result{}, StatusUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, result := range tt.checks {
				r := result
				c.Register(name, func(ctx context.Context) Result { return r })
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %q, want %q", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %v", report.Components)
			}
		})
	}
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		wantCode int
	}{
		{"up", Up("ok"), http.StatusOK},
		{"degraded", Degraded("slow"), http.StatusOK},
		{"down", Down("dead"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.Register("sub", func(ctx context.Context) Result { return tt.result })

			rec := httptest.NewRecorder()
			c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}

			var report Report
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("invalid report body: %v", err)
			}
			if _, ok := report.Components["sub"]; !ok {
				t.Errorf("report missing component: %+v", report)
			}
		})
	}
}

func TestLiveHandlerAlwaysOK(t *testing.T) {
	c := NewChecker()
	c.Register("sub", func(ctx context.Context) Result { return Down("dead") })

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", rec.Code)
	}
}
