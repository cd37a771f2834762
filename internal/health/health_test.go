package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeReporter struct {
	last time.Time
	err  error
}

func (f *fakeReporter) LastPass() (time.Time, error) {
	return f.last, f.err
}

func TestNewChecker(t *testing.T) {
	c := NewChecker(5 * time.Second)
	if c == nil {
		t.Fatal("NewChecker returned nil")
	}

	if c.timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", c.timeout)
	}

	c2 := NewChecker(0)
	if c2.timeout != 5*time.Second {
		t.Errorf("Expected default timeout 5s, got %v", c2.timeout)
	}
}

func TestCheck(t *testing.T) {
	c := NewChecker(5 * time.Second)

	c.Register("component1", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	})
	c.Register("component2", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "Component 2 is degraded"}
	})

	results := c.Check(context.Background())

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results["component2"].Status != StatusDegraded {
		t.Errorf("Expected component2 degraded, got %s", results["component2"].Status)
	}
	if results["component1"].LastChecked.IsZero() {
		t.Error("Expected LastChecked to be set")
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(map[string]ComponentHealth)
			for i, s := range tt.statuses {
				results[string(rune('a'+i))] = ComponentHealth{Status: s}
			}
			if got := Overall(results); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"healthy"}` {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("tail", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "read failed"}
	})

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 while degraded, got %d", rec.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", resp.Status)
	}
	if resp.Components["tail"].Message != "read failed" {
		t.Errorf("Expected component message, got %q", resp.Components["tail"].Message)
	}
}

func TestReadinessHandlerUnhealthy(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("batch", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUnhealthy}
	})

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestPassCheck(t *testing.T) {
	interval := 100 * time.Millisecond

	t.Run("recent success", func(t *testing.T) {
		check := PassCheck(&fakeReporter{last: time.Now()}, interval)
		if got := check(context.Background()).Status; got != StatusHealthy {
			t.Errorf("Expected healthy, got %s", got)
		}
	})

	t.Run("recent failure", func(t *testing.T) {
		check := PassCheck(&fakeReporter{last: time.Now(), err: errors.New("disk")}, interval)
		result := check(context.Background())
		if result.Status != StatusDegraded {
			t.Errorf("Expected degraded, got %s", result.Status)
		}
		if result.Message != "disk" {
			t.Errorf("Expected message disk, got %q", result.Message)
		}
	})

	t.Run("stale", func(t *testing.T) {
		check := PassCheck(&fakeReporter{last: time.Now().Add(-time.Second)}, interval)
		if got := check(context.Background()).Status; got != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", got)
		}
	})

	t.Run("no pass yet", func(t *testing.T) {
		check := PassCheck(&fakeReporter{}, interval)
		if got := check(context.Background()).Status; got != StatusHealthy {
			t.Errorf("Expected healthy within the grace period, got %s", got)
		}

		time.Sleep(4 * interval)
		if got := check(context.Background()).Status; got != StatusUnhealthy {
			t.Errorf("Expected unhealthy after three intervals, got %s", got)
		}
	})
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) ComponentHealth {
		select {
		case <-ctx.Done():
			return ComponentHealth{Status: StatusUnhealthy, Message: "timed out"}
		case <-time.After(time.Second):
			return ComponentHealth{Status: StatusHealthy}
		}
	})

	results := c.Check(context.Background())
	if results["slow"].Status != StatusUnhealthy {
		t.Errorf("Expected check to observe timeout, got %s", results["slow"].Status)
	}
}
