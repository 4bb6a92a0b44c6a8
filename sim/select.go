package sim

import (
	"fmt"
	"math/rand"
	"sort"
)

// Selector picks exactly one URI among submodels simultaneously eligible
// for an internal step. candidates is sorted and has at least two entries;
// rng is the seeded tie-break stream of the coupled model.
type Selector func(candidates []string, rng *rand.Rand) string

const (
	// SelectRandom picks uniformly at random from the seeded stream. It is
	// the default policy.
	SelectRandom = "random"
	// SelectLowestURI picks the lexicographically smallest URI.
	SelectLowestURI = "lowest-uri"
)

// RandomSelector implements SelectRandom.
func RandomSelector(candidates []string, rng *rand.Rand) string {
	return candidates[rng.Intn(len(candidates))]
}

// LowestURISelector implements SelectLowestURI.
func LowestURISelector(candidates []string, _ *rand.Rand) string {
	lowest := candidates[0]
	for _, c := range candidates[1:] {
		if c < lowest {
			lowest = c
		}
	}
	return lowest
}

// ValidSelectPolicies is the set of recognized select policy names.
// Shared by SelectorByName and architecture validation.
var ValidSelectPolicies = map[string]bool{"": true, SelectRandom: true, SelectLowestURI: true}

// SelectorByName returns the built-in selector for a policy name; the empty
// name is SelectRandom.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", SelectRandom:
		return RandomSelector, nil
	case SelectLowestURI:
		return LowestURISelector, nil
	}
	return nil, fmt.Errorf("unknown select policy %q; valid: %s, %s", name, SelectRandom, SelectLowestURI)
}

// hybridFilter keeps the candidates that do not import a continuous
// variable from another candidate, so that producers step before consumers.
// When every candidate depends on another one the input is returned.
func hybridFilter(candidates []string, dependsOn map[string]map[string]bool) []string {
	inSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		inSet[c] = true
	}
	var free []string
	for _, c := range candidates {
		blocked := false
		for dep := range dependsOn[c] {
			if inSet[dep] {
				blocked = true
				break
			}
		}
		if !blocked {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return candidates
	}
	return free
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
