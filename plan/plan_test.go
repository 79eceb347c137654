package plan

import "testing"

func TestResolver_BuiltinPlans(t *testing.T) {
	r := NewResolver()

	full := r.Resolve(TypeFullListing)
	want := []string{"collect_data", "generate_description", "publish_listing", "collect_analytics"}
	if len(full) != len(want) {
		t.Fatalf("full_listing plan length = %d, want %d", len(full), len(want))
	}
	for i := range want {
		if full[i] != want[i] {
			t.Fatalf("full_listing[%d] = %q, want %q", i, full[i], want[i])
		}
	}

	test := r.Resolve(TypeTest)
	if len(test) != 1 || test[0] != "test_node" {
		t.Fatalf("test plan = %v, want [test_node]", test)
	}
}

func TestResolver_UnknownLabelFallsBack(t *testing.T) {
	r := NewResolver()

	first := r.Resolve("no_such_type")
	if len(first) != 1 || first[0] != "test_node" {
		t.Fatalf("unknown label resolved to %v, want the test plan", first)
	}

	// Resolution must be deterministic: same fallback every time.
	for i := 0; i < 10; i++ {
		again := r.Resolve("no_such_type")
		if len(again) != len(first) || again[0] != first[0] {
			t.Fatalf("resolution %d = %v, want %v", i, again, first)
		}
	}
}

func TestResolver_ResolveNeverEmpty(t *testing.T) {
	r := NewResolver()

	for _, label := range []string{"", TypeTest, TypeFullListing, "garbage", "full_listing "} {
		if steps := r.Resolve(label); len(steps) == 0 {
			t.Fatalf("Resolve(%q) returned an empty plan", label)
		}
	}
}

func TestResolver_RegisterReplacesAndCopies(t *testing.T) {
	r := NewResolver()

	steps := []string{"alpha", "beta"}
	r.Register("custom", steps)

	// Mutating the caller's slice must not affect the registered plan.
	steps[0] = "mutated"
	got := r.Resolve("custom")
	if got[0] != "alpha" {
		t.Fatalf("registered plan shares backing array with caller: got %v", got)
	}

	// Mutating a resolved copy must not affect later resolutions.
	got[1] = "mutated"
	if again := r.Resolve("custom"); again[1] != "beta" {
		t.Fatalf("resolved plan shares backing array with resolver: got %v", again)
	}

	r.Register("custom", []string{"gamma"})
	if got := r.Resolve("custom"); len(got) != 1 || got[0] != "gamma" {
		t.Fatalf("re-registered plan = %v, want [gamma]", got)
	}
}

func TestResolver_Known(t *testing.T) {
	r := NewResolver()

	if !r.Known(TypeFullListing) {
		t.Fatal("full_listing should be known")
	}
	if r.Known("no_such_type") {
		t.Fatal("unregistered label reported as known")
	}
}

func TestResolver_PlansSnapshot(t *testing.T) {
	r := NewResolver()
	r.Register("custom", []string{"alpha"})

	snap := r.Plans()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d plans, want 3", len(snap))
	}
	if got := snap["custom"]; len(got) != 1 || got[0] != "alpha" {
		t.Fatalf("snapshot[custom] = %v, want [alpha]", got)
	}

	// Mutating the snapshot must not leak into the resolver.
	snap["custom"][0] = "mutated"
	if got := r.Resolve("custom"); got[0] != "alpha" {
		t.Fatalf("snapshot shares backing array with resolver: got %v", got)
	}
}
