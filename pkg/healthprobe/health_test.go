package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestNew(t *testing.T) {
	hc := New(0)

	if hc == nil {
		t.Fatal("New() returned nil")
	}

	if time.Since(hc.startTime) > 1*time.Second {
		t.Errorf("Start time is too old: %v", hc.startTime)
	}

	if hc.ready.Load() {
		t.Error("HealthChecker should not be ready by default")
	}
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	hc := New(0)

	tests := []struct {
		name     string
		setReady bool
	}{
		{name: "not_ready", setReady: false},
		{name: "ready", setReady: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc.SetReady(tt.setReady)

			handler := hc.Health()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			handler(w, req)

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("Health handler status = %d, want %d (ready=%v)", resp.StatusCode, http.StatusOK, tt.setReady)
			}

			var healthResp HealthResponse
			err := json.NewDecoder(resp.Body).Decode(&healthResp)
			if err != nil {
				t.Fatalf("Failed to decode health response: %v", err)
			}

			if healthResp.Status != "healthy" {
				t.Errorf("Status = %s, want healthy", healthResp.Status)
			}
			if healthResp.Uptime == "" {
				t.Error("Uptime is empty")
			}
		})
	}
}

func TestReady_StateChanges(t *testing.T) {
	hc := New(0)
	handler := hc.Ready()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Initial ready status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	hc.SetReady(true)
	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Ready status after SetReady(true) = %d, want %d", w.Code, http.StatusOK)
	}

	hc.SetReady(false)
	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Ready status after SetReady(false) = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestReady_StaleTick(t *testing.T) {
	hc := New(50 * time.Millisecond)
	hc.SetReady(true)
	handler := hc.Ready()

	// No tick observed yet: staleness does not apply before first cycle.
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Ready status before first tick = %d, want %d", w.Code, http.StatusOK)
	}

	hc.ObserveTick(time.Now())
	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Ready status after fresh tick = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	err := json.NewDecoder(w.Body).Decode(&resp)
	if err != nil {
		t.Fatalf("Failed to decode ready response: %v", err)
	}
	if resp.LastTick == "" {
		t.Error("LastTick should be set after ObserveTick")
	}

	time.Sleep(80 * time.Millisecond)

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Ready status after stale tick = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New(time.Minute)
	handler := hc.Ready()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			hc.SetReady(i%2 == 0)
			hc.ObserveTick(time.Now())
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()
			handler(w, req)
		}
		done <- true
	}()

	<-done
	<-done
}
