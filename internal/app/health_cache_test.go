package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthCache_InitialState(t *testing.T) {
	cache := NewHealthCache(30 * time.Second)

	if cache.TTL() != 30*time.Second {
		t.Errorf("TTL() = %v", cache.TTL())
	}
	if _, valid := cache.Get(); valid {
		t.Error("new cache should not be valid")
	}
}

func TestHealthCache_SetGetInvalidate(t *testing.T) {
	cache := NewHealthCache(30 * time.Second)
	cache.Set(map[string]string{"database": HealthConnected})

	states, valid := cache.Get()
	if !valid || states["database"] != HealthConnected {
		t.Fatalf("unexpected cache state %v valid=%v", states, valid)
	}

	// callers get a copy
	states["database"] = HealthDisconnected
	if again, _ := cache.Get(); again["database"] != HealthConnected {
		t.Error("cached states were modified through the returned map")
	}

	cache.Invalidate()
	if _, valid := cache.Get(); valid {
		t.Error("cache should be invalid after Invalidate")
	}
}

func TestHealthCache_Expiry(t *testing.T) {
	cache := NewHealthCache(10 * time.Millisecond)
	cache.Set(map[string]string{})

	time.Sleep(20 * time.Millisecond)
	if _, valid := cache.Get(); valid {
		t.Error("cache should expire after TTL")
	}
}

func TestHealthCache_ZeroTTL(t *testing.T) {
	cache := NewHealthCache(0)
	cache.Set(map[string]string{})

	if _, valid := cache.Get(); valid {
		t.Error("zero TTL should disable caching")
	}
}

func TestApp_HealthIsCached(t *testing.T) {
	var probes atomic.Int32
	deps := testDeps()
	deps.Checks = map[string]HealthCheck{
		"redis": func(context.Context) error {
			probes.Add(1)
			return errors.New("down")
		},
	}
	a := testApp(deps)

	for range 3 {
		if got := a.Health(context.Background())["redis"]; got != HealthDisconnected {
			t.Fatalf("redis = %q", got)
		}
	}
	if n := probes.Load(); n != 1 {
		t.Errorf("expected one probe within the TTL, got %d", n)
	}
}
