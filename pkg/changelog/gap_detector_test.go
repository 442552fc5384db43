package changelog

import (
	"context"
	"testing"

	"github.com/certen/cnft-indexer/pkg/database"
)

type fakeTreeProvider struct {
	trees []*database.Tree
}

func (f *fakeTreeProvider) All(ctx context.Context) ([]*database.Tree, error) {
	return f.trees, nil
}

type fakeObservedSeqProvider struct {
	byTree map[string][]int64
}

func (f *fakeObservedSeqProvider) ObservedSeqs(ctx context.Context, treeID []byte) ([]int64, error) {
	return f.byTree[string(treeID)], nil
}

func TestGapDetector_ScanOnce_FindsGapsAndGenesisFloor(t *testing.T) {
	treeID := []byte("tree-a")
	trees := &fakeTreeProvider{trees: []*database.Tree{{TreeID: treeID}}}
	observed := &fakeObservedSeqProvider{byTree: map[string][]int64{
		string(treeID): {2, 3, 6, 7},
	}}

	var got []GapTask
	d := NewGapDetector(trees, observed, GapDetectorConfig{
		Callback: func(ctx context.Context, task GapTask) error {
			got = append(got, task)
			return nil
		},
	})

	if err := d.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}

	// expect: genesis floor [0,1], then interior gap [4,5]
	if len(got) != 2 {
		t.Fatalf("expected 2 gap tasks, got %d: %+v", len(got), got)
	}
	if got[0].From != 0 || got[0].To != 1 {
		t.Errorf("genesis gap = %+v, want {0 1}", got[0])
	}
	if got[1].From != 4 || got[1].To != 5 {
		t.Errorf("interior gap = %+v, want {4 5}", got[1])
	}
}

func TestGapDetector_ScanOnce_NoGapsWhenContiguousFromZero(t *testing.T) {
	treeID := []byte("tree-b")
	trees := &fakeTreeProvider{trees: []*database.Tree{{TreeID: treeID}}}
	observed := &fakeObservedSeqProvider{byTree: map[string][]int64{
		string(treeID): {0, 1, 2, 3},
	}}

	called := false
	d := NewGapDetector(trees, observed, GapDetectorConfig{
		Callback: func(ctx context.Context, task GapTask) error {
			called = true
			return nil
		},
	})

	if err := d.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if called {
		t.Error("expected no gap callbacks for a contiguous zero-based log")
	}
}
