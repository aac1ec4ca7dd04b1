package replica

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/listnote/listnote-core/internal/core/domain"
)

func docWith(texts ...string) domain.Node {
	doc := domain.NewDoc()
	for _, t := range texts {
		doc.Content = append(doc.Content, domain.NewParagraph(t))
	}
	return doc
}

func texts(r *Replica) string {
	var parts []string
	for _, n := range r.Doc().Content {
		parts = append(parts, n.TextContent())
	}
	return strings.Join(parts, "|")
}

func mustApply(t *testing.T, r *Replica, doc domain.Node) []byte {
	t.Helper()
	u, err := r.ApplyLocal(doc)
	if err != nil {
		t.Fatalf("ApplyLocal failed: %v", err)
	}
	return u
}

func mustMerge(t *testing.T, r *Replica, u []byte) bool {
	t.Helper()
	changed, err := r.Merge(u)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	return changed
}

// pair returns two replicas that share base as their starting content
func pair(t *testing.T, base ...string) (*Replica, *Replica) {
	t.Helper()
	a, b := New("a"), New("b")
	mustApply(t, a, docWith(base...))
	state, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	mustMerge(t, b, state)
	return a, b
}

func TestEncodeMergeRoundTrip(t *testing.T) {
	src := New("a")
	want := docWith("hello", "world")
	want.Content = append(want.Content, domain.Node{Type: "task", Attrs: map[string]any{"id": "t1", "title": "x"}})
	mustApply(t, src, want)

	state, err := src.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	dst := New("b")
	if !mustMerge(t, dst, state) {
		t.Error("expected merge into an empty replica to change it")
	}
	if diff := cmp.Diff(want, dst.Doc()); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_EditsToDifferentBlocksBothSurvive(t *testing.T) {
	a, b := pair(t, "one", "two")

	ua := mustApply(t, a, docWith("one edited by a", "two"))
	ub := mustApply(t, b, docWith("one", "two edited by b"))
	mustMerge(t, a, ub)
	mustMerge(t, b, ua)

	want := "one edited by a|two edited by b"
	if got := texts(a); got != want {
		t.Errorf("a = %q, want %q", got, want)
	}
	if got := texts(b); got != want {
		t.Errorf("b = %q, want %q", got, want)
	}
}

func TestMerge_ConcurrentInsertsConverge(t *testing.T) {
	a, b := pair(t, "top", "bottom")

	ua := mustApply(t, a, docWith("top", "from a", "bottom"))
	ub := mustApply(t, b, docWith("top", "from b", "bottom", "tail b"))

	// opposite delivery orders
	mustMerge(t, a, ub)
	mustMerge(t, b, ua)

	if texts(a) != texts(b) {
		t.Fatalf("replicas diverged: a=%q b=%q", texts(a), texts(b))
	}
	got := texts(a)
	for _, s := range []string{"top", "from a", "from b", "bottom", "tail b"} {
		if !strings.Contains(got, s) {
			t.Errorf("%q missing from %q", s, got)
		}
	}
	if !strings.HasPrefix(got, "top|") || !strings.HasSuffix(got, "bottom|tail b") {
		t.Errorf("inserts landed outside their neighbours: %q", got)
	}
}

func TestMerge_SameBlockNewerWriteWins(t *testing.T) {
	a, b := pair(t, "base")

	ua := mustApply(t, a, docWith("from a"))
	ub := mustApply(t, b, docWith("from b"))
	mustMerge(t, a, ub)
	mustMerge(t, b, ua)

	// equal clocks: the larger client id wins on both sides
	if texts(a) != "from b" || texts(b) != "from b" {
		t.Errorf("got a=%q b=%q, want both %q", texts(a), texts(b), "from b")
	}

	// a writes after seeing b's write, so a wins everywhere
	ua2 := mustApply(t, a, docWith("later a"))
	if !mustMerge(t, b, ua2) || texts(b) != "later a" {
		t.Errorf("expected b to adopt the later write, got %q", texts(b))
	}

	// replaying an old update changes nothing
	if mustMerge(t, b, ub) {
		t.Error("stale update should not change the replica")
	}
}

func TestMerge_DeletionIsKept(t *testing.T) {
	a, b := pair(t, "keep", "drop", "also keep")

	ua := mustApply(t, a, docWith("keep", "also keep"))
	ub := mustApply(t, b, docWith("keep edited", "drop", "also keep"))
	mustMerge(t, a, ub)
	mustMerge(t, b, ua)

	want := "keep edited|also keep"
	if texts(a) != want || texts(b) != want {
		t.Errorf("got a=%q b=%q, want %q", texts(a), texts(b), want)
	}
}

func TestMerge_OutOfOrderDelivery(t *testing.T) {
	a := New("a")
	b := New("b")

	u1 := mustApply(t, a, docWith("first"))
	u2 := mustApply(t, a, docWith("first", "second"))

	// the child arrives before its predecessor
	mustMerge(t, b, u2)
	if texts(b) != "second" {
		t.Errorf("orphan not shown: %q", texts(b))
	}
	mustMerge(t, b, u1)
	if texts(b) != "first|second" {
		t.Errorf("got %q after the predecessor arrived, want %q", texts(b), "first|second")
	}
}

func TestSeed_IndependentSeedsAgree(t *testing.T) {
	snapshot := docWith("from", "snapshot")
	a, b := New("a"), New("b")

	ua, err := a.Seed(snapshot)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if _, err := b.Seed(snapshot); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if mustMerge(t, b, ua) {
		t.Error("merging an identical seed should change nothing")
	}
	if texts(b) != "from|snapshot" {
		t.Errorf("seeded content duplicated or lost: %q", texts(b))
	}

	// any edit beats the seed
	edit := mustApply(t, b, docWith("from", "snapshot edited"))
	mustMerge(t, a, edit)
	if texts(a) != "from|snapshot edited" {
		t.Errorf("edit lost against seed: %q", texts(a))
	}

	// seeding a replica with content records a normal change
	if _, err := a.Seed(docWith("replaced")); err != nil {
		t.Fatal(err)
	}
	if texts(a) != "replaced" {
		t.Errorf("got %q", texts(a))
	}
}

func TestMerge_EmptyStateIsNoop(t *testing.T) {
	empty, _ := New("x").Encode()

	r := New("r")
	mustApply(t, r, docWith("keep"))
	changed, err := r.Merge(empty)
	if err != nil || changed {
		t.Errorf("Merge(empty) = %v, %v; want false, nil", changed, err)
	}
	if texts(r) != "keep" {
		t.Error("content lost")
	}
	if !New("y").Empty() {
		t.Error("new replica should be empty")
	}
}

func TestMerge_InvalidUpdate(t *testing.T) {
	r := New("r")
	_, err := r.Merge([]byte("not json"))
	if !errors.Is(err, domain.ErrInvalidUpdate) {
		t.Errorf("expected ErrInvalidUpdate, got %v", err)
	}
}

func TestDestroy(t *testing.T) {
	r := New("r")
	mustApply(t, r, docWith("a"))
	r.Destroy()

	if _, err := r.Encode(); !errors.Is(err, domain.ErrReplicaDestroyed) {
		t.Errorf("Encode after Destroy: %v", err)
	}
	if _, err := r.ApplyLocal(docWith("b")); !errors.Is(err, domain.ErrReplicaDestroyed) {
		t.Errorf("ApplyLocal after Destroy: %v", err)
	}
	if _, err := r.Seed(docWith("b")); !errors.Is(err, domain.ErrReplicaDestroyed) {
		t.Errorf("Seed after Destroy: %v", err)
	}
}

func TestFactory_RandomClientIDs(t *testing.T) {
	f := NewFactory()
	a, b := f.NewReplica(), f.NewReplica()
	if a.ClientID() == "" || a.ClientID() == b.ClientID() {
		t.Errorf("expected distinct client ids, got %q and %q", a.ClientID(), b.ClientID())
	}
}

func TestCommonBlocks(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want [][2]int
	}{
		{"identical", []string{"x", "y"}, []string{"x", "y"}, [][2]int{{0, 0}, {1, 1}}},
		{"insert in middle", []string{"x", "z"}, []string{"x", "y", "z"}, [][2]int{{0, 0}, {1, 2}}},
		{"nothing shared", []string{"x"}, []string{"y"}, nil},
		{"empty", nil, []string{"y"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commonBlocks(tt.a, tt.b)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("commonBlocks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
