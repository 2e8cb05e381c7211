// Package tier maps user tiers onto resource budgets: how many jobs a user may
// run concurrently, how many scenes a single submission may contain, and how
// strongly the consumer favors the user's tasks inside a delivered batch.
package tier

import (
	"fmt"
	"os"
	"strconv"
)

// Policy is the resource budget for one tier. Values are read-only at runtime.
type Policy struct {
	Name              string
	MaxConcurrentJobs int
	MaxBatchSize      int
	PriorityWeight    int
}

// Policies resolves tier names to policies.
type Policies struct {
	byName   map[string]Policy
	fallback Policy
}

// DefaultTier is assumed for users without an explicit tier assignment.
const DefaultTier = "tier1"

var defaults = []Policy{
	{Name: "tier1", MaxConcurrentJobs: 2, MaxBatchSize: 3, PriorityWeight: 1},
	{Name: "tier2", MaxConcurrentJobs: 5, MaxBatchSize: 5, PriorityWeight: 2},
	{Name: "tier3", MaxConcurrentJobs: 10, MaxBatchSize: 8, PriorityWeight: 3},
	{Name: "tier4", MaxConcurrentJobs: 20, MaxBatchSize: 10, PriorityWeight: 4},
}

// Load builds the policy table from the hardcoded defaults, applying any
// TIER<N>_MAX_CONCURRENT_JOBS, TIER<N>_MAX_BATCH_SIZE and
// TIER<N>_PRIORITY_WEIGHT environment overrides.
func Load() Policies {
	byName := make(map[string]Policy, len(defaults))
	for i, def := range defaults {
		p := def
		prefix := fmt.Sprintf("TIER%d_", i+1)
		p.MaxConcurrentJobs = envInt(prefix+"MAX_CONCURRENT_JOBS", p.MaxConcurrentJobs)
		p.MaxBatchSize = envInt(prefix+"MAX_BATCH_SIZE", p.MaxBatchSize)
		p.PriorityWeight = envInt(prefix+"PRIORITY_WEIGHT", p.PriorityWeight)
		byName[p.Name] = p
	}
	return Policies{byName: byName, fallback: byName[DefaultTier]}
}

// Get returns the policy for name. Unknown tiers fall back to the lowest tier
// rather than erroring, so a bad tier value degrades service instead of
// blocking it.
func (p Policies) Get(name string) Policy {
	if policy, ok := p.byName[name]; ok {
		return policy
	}
	return p.fallback
}

// Known reports whether name is a configured tier.
func (p Policies) Known(name string) bool {
	_, ok := p.byName[name]
	return ok
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}
