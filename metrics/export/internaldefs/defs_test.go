package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionsAreUnique(t *testing.T) {
	seenID := map[any]string{}
	seenName := map[string]bool{AuditDroppedName: true}
	for _, def := range CounterDefs {
		if prev, ok := seenID[def.ID]; ok {
			t.Fatalf("metric id of %s already used by %s", def.Name, prev)
		}
		if seenName[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		if !strings.HasSuffix(def.Name, "_total") || def.Help == "" {
			t.Fatalf("malformed counter definition %+v", def)
		}
		seenID[def.ID] = def.Name
		seenName[def.Name] = true
	}
	for _, def := range HistogramDefs {
		if seenName[def.Name] || !strings.HasSuffix(def.Name, "_seconds") {
			t.Fatalf("malformed histogram definition %+v", def)
		}
		seenName[def.Name] = true
	}
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatalf("expected 8 bucket bounds, got %d/%d", len(HistogramBounds), len(HistogramBoundSuffix))
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if NormalizeBuckets(make([]uint64, 12)) != [8]uint64{} {
		t.Fatal("expected extra buckets to be dropped")
	}
}
