package merkle

import (
	"reflect"
	"testing"
)

func TestFindGaps(t *testing.T) {
	cases := []struct {
		name     string
		observed []int64
		want     []GapRange
	}{
		{"empty", nil, nil},
		{"single", []int64{5}, nil},
		{"contiguous", []int64{0, 1, 2, 3}, nil},
		{"one gap", []int64{0, 1, 4, 5}, []GapRange{{From: 2, To: 3}}},
		{"unsorted with duplicates", []int64{5, 0, 1, 1, 4}, []GapRange{{From: 2, To: 3}}},
		{"multiple gaps", []int64{0, 2, 2, 5, 9}, []GapRange{{From: 1, To: 1}, {From: 3, To: 4}, {From: 6, To: 8}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := FindGaps(c.observed)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("FindGaps(%v) = %v, want %v", c.observed, got, c.want)
			}
		})
	}
}

func TestDeriveAssetID_Deterministic(t *testing.T) {
	treeID := []byte("tree-one-aaaaaaaaaaaaaaaaaaaaaaa")
	a1 := DeriveAssetID(treeID, 42)
	a2 := DeriveAssetID(treeID, 42)
	if !reflect.DeepEqual(a1, a2) {
		t.Fatalf("DeriveAssetID is not deterministic for the same (treeID, nonce)")
	}

	a3 := DeriveAssetID(treeID, 43)
	if reflect.DeepEqual(a1, a3) {
		t.Fatalf("DeriveAssetID collided across different nonces")
	}
}
