package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func readiness(t *testing.T, c *Checker) (int, Status) {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))

	var st Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	return rec.Code, st
}

// TestReadinessStates walks ready, degraded and waiting.
func TestReadinessStates(t *testing.T) {
	c := NewChecker("wall-0")
	connected := true
	stalled := false
	c.SetBarrier(func() bool { return connected })
	c.AddStream("lobby", func() StreamStatus {
		return StreamStatus{Installed: 4, LastVersion: 4, Stalled: stalled, Proposals: map[string]uint64{"wall-0": 5, "wall-1": 4}}
	})

	code, st := readiness(t, c)
	if code != http.StatusOK || st.Status != "ready" || st.ProcessID != "wall-0" {
		t.Fatalf("ready: %d %+v", code, st)
	}
	if got := st.Streams["lobby"]; got.LastVersion != 4 || got.Proposals["wall-1"] != 4 {
		t.Errorf("stream status %+v", got)
	}

	connected = false
	if code, st = readiness(t, c); code != http.StatusOK || st.Status != "degraded" {
		t.Errorf("degraded: %d %+v", code, st)
	}

	stalled = true
	code, st = readiness(t, c)
	if code != http.StatusServiceUnavailable || st.Status != "waiting" {
		t.Errorf("waiting: %d %+v", code, st)
	}
	if !reflect.DeepEqual(st.Stalled, []string{"lobby"}) {
		t.Errorf("stalled %v", st.Stalled)
	}

	c.RemoveStream("lobby")
	connected = true
	if _, st = readiness(t, c); st.Status != "ready" || len(st.Streams) != 0 {
		t.Errorf("after removal: %+v", st)
	}
}

// TestLiveness verifies /health always answers.
func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker("wall-0").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["status"] != "alive" {
		t.Errorf("body %v (%v)", body, err)
	}
}
