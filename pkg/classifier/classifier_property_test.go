package classifier

import (
	"fmt"
	"testing"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allKinds = []types.EventKind{
	types.KindPage,
	types.KindPing,
	types.KindProfile,
	types.KindData,
	types.KindRaised,
}

// TestProperty_MuteDropsEverything: any non-fetch event is dropped while muted,
// whatever the opt-out state.
func TestProperty_MuteDropsEverything(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("muted instances drop every droppable event", prop.ForAll(
		func(kindIdx int, name string, optedOut, systemEnabled bool) bool {
			event := types.NewEvent(allKinds[kindIdx], name, nil)
			return ShouldDrop(event, true, optedOut, systemEnabled)
		},
		gen.IntRange(0, len(allKinds)-1),
		gen.AlphaString(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestProperty_IncrementAddsDelta: for a cached value v (absent means zero) and
// $incr d, the new value is v + d.
func TestProperty_IncrementAddsDelta(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("increment adds the delta to the cached value", prop.ForAll(
		func(v, d int64, present bool) bool {
			cache := newMapCache(nil)
			if present {
				cache.values["Score"] = v
			} else {
				v = 0
			}

			patch := types.NewPayload().Set("Score", map[string]any{"$incr": d})
			if _, err := ComputeAttributeChanges(patch, cache); err != nil {
				return false
			}
			return valuesEqual(cache.values["Score"], v+d)
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Int64Range(-1_000, 1_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestProperty_DiffIsIdempotent: applying the same patch twice yields no
// changes the second time.
func TestProperty_DiffIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("second identical patch produces an empty diff", prop.ForAll(
		func(values []string, n int) bool {
			patch := types.NewPayload()
			for i, v := range values {
				patch.Set(fmt.Sprintf("field_%d", i), v)
			}
			patch.Set("count", n)

			cache := newMapCache(nil)
			if _, err := ComputeAttributeChanges(patch, cache); err != nil {
				return false
			}
			changes, err := ComputeAttributeChanges(patch, cache)
			return err == nil && len(changes) == 0
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Int(),
	))

	properties.TestingRun(t)
}
