package db

import (
	"encoding/json"
	"testing"
)

func TestPoolStatsJSON(t *testing.T) {
	stats := PoolStats{
		TotalConns:    10,
		IdleConns:     4,
		AcquiredConns: 6,
		MaxConns:      20,
		AcquireWait:   "1.5s",
	}

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_wait"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in health payload", key)
		}
	}
	if decoded["total_conns"].(float64) != 10 {
		t.Errorf("expected total_conns 10, got %v", decoded["total_conns"])
	}
}
