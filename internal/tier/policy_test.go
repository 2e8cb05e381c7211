package tier

import "testing"

func TestLoadDefaults(t *testing.T) {
	policies := Load()

	p := policies.Get("tier2")
	if p.MaxConcurrentJobs != 5 {
		t.Fatalf("tier2 MaxConcurrentJobs: got %d want 5", p.MaxConcurrentJobs)
	}
	if p.PriorityWeight != 2 {
		t.Fatalf("tier2 PriorityWeight: got %d want 2", p.PriorityWeight)
	}

	p = policies.Get("tier4")
	if p.MaxConcurrentJobs != 20 || p.MaxBatchSize != 10 || p.PriorityWeight != 4 {
		t.Fatalf("tier4 unexpected policy: %+v", p)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TIER2_MAX_CONCURRENT_JOBS", "7")
	t.Setenv("TIER3_PRIORITY_WEIGHT", "9")

	policies := Load()

	if got := policies.Get("tier2").MaxConcurrentJobs; got != 7 {
		t.Fatalf("tier2 MaxConcurrentJobs override: got %d want 7", got)
	}
	if got := policies.Get("tier3").PriorityWeight; got != 9 {
		t.Fatalf("tier3 PriorityWeight override: got %d want 9", got)
	}
	// Untouched values keep their defaults.
	if got := policies.Get("tier2").MaxBatchSize; got != 5 {
		t.Fatalf("tier2 MaxBatchSize: got %d want 5", got)
	}
}

func TestLoadIgnoresInvalidOverride(t *testing.T) {
	t.Setenv("TIER1_MAX_CONCURRENT_JOBS", "not-a-number")

	policies := Load()
	if got := policies.Get("tier1").MaxConcurrentJobs; got != 2 {
		t.Fatalf("tier1 MaxConcurrentJobs: got %d want 2", got)
	}
}

func TestGetUnknownTierFallsBack(t *testing.T) {
	policies := Load()

	p := policies.Get("platinum")
	if p.Name != DefaultTier {
		t.Fatalf("unknown tier should fall back to %s, got %s", DefaultTier, p.Name)
	}
	if policies.Known("platinum") {
		t.Fatal("platinum should not be a known tier")
	}
	if !policies.Known("tier3") {
		t.Fatal("tier3 should be known")
	}
}
