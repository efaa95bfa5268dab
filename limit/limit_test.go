package limit_test

import (
	"testing"

	"github.com/taskhive/hive/limit"
)

func TestGovernor_UnconfiguredPoolAllowed(t *testing.T) {
	g := limit.NewGovernor()

	for range 100 {
		if !g.Allow("anything") {
			t.Fatal("unconfigured pool should always be allowed")
		}
	}
}

func TestGovernor_BurstExhaustion(t *testing.T) {
	g := limit.NewGovernor(limit.Config{Pool: "gpu", Rate: 1, Burst: 3})

	allowed := 0
	for range 10 {
		if g.Allow("gpu") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed = %d, want 3 (burst size)", allowed)
	}

	// Other pools are unaffected.
	if !g.Allow("cpu") {
		t.Error("unconfigured pool should be allowed")
	}
}

func TestGovernor_ZeroRateDisablesLimit(t *testing.T) {
	g := limit.NewGovernor(limit.Config{Pool: "default", Rate: 0})

	for range 50 {
		if !g.Allow("default") {
			t.Fatal("zero rate should disable limiting")
		}
	}
}

func TestGovernor_DefaultBurst(t *testing.T) {
	g := limit.NewGovernor(limit.Config{Pool: "slow", Rate: 0.001})

	if !g.Allow("slow") {
		t.Error("first call should consume the single default burst token")
	}
	if g.Allow("slow") {
		t.Error("second call should be denied at 0.001/s")
	}
}
