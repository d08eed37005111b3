package detection

import (
	"testing"

	"edgeagent/internal/model"
)

func testCategories(t *testing.T) model.CategoryMap {
	t.Helper()
	m, err := model.NewCategoryMap([]model.CategoryBinding{
		{ClassID: 52, Name: "banana"},
		{ClassID: 55, Name: "orange"},
	})
	if err != nil {
		t.Fatalf("NewCategoryMap failed: %v", err)
	}
	return m
}

func TestFilter_Threshold(t *testing.T) {
	f := NewFilter(0.5, testCategories(t))

	got := f.Filter([]model.RawDetection{
		{ClassID: 52, Score: 0.3},
		{ClassID: 55, Score: 0.6},
	})

	if len(got) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(got))
	}
	if got[0].ClassID != 55 || got[0].Score != 0.6 {
		t.Errorf("Expected (55, 0.6), got (%d, %v)", got[0].ClassID, got[0].Score)
	}
	if got[0].Category != "orange" {
		t.Errorf("Expected category orange, got %s", got[0].Category)
	}
}

func TestFilter_ScoreEqualToThresholdIsDropped(t *testing.T) {
	f := NewFilter(0.3, testCategories(t))

	got := f.Filter([]model.RawDetection{{ClassID: 52, Score: 0.3}})
	if len(got) != 0 {
		t.Errorf("Expected score == threshold to be dropped, got %v", got)
	}
}

func TestFilter_UnmappedClassIsOther(t *testing.T) {
	f := NewFilter(0.3, testCategories(t))

	got := f.Filter([]model.RawDetection{{ClassID: 3, Score: 0.42}})
	if len(got) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(got))
	}
	if got[0].Category != model.CategoryOther {
		t.Errorf("Expected %q, got %q", model.CategoryOther, got[0].Category)
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	f := NewFilter(0.1, testCategories(t))

	in := []model.RawDetection{
		{ClassID: 55, Score: 0.9},
		{ClassID: 1, Score: 0.05},
		{ClassID: 52, Score: 0.4},
		{ClassID: 18, Score: 0.7},
	}
	got := f.Filter(in)

	wantIDs := []int{55, 52, 18}
	if len(got) != len(wantIDs) {
		t.Fatalf("Expected %d detections, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].ClassID != id {
			t.Errorf("Position %d: expected class %d, got %d", i, id, got[i].ClassID)
		}
	}
}

func TestFilter_EmptyInput(t *testing.T) {
	f := NewFilter(0.3, testCategories(t))

	for _, in := range [][]model.RawDetection{nil, {}} {
		got := f.Filter(in)
		if got == nil || len(got) != 0 {
			t.Errorf("Expected empty non-nil result, got %#v", got)
		}
	}
}
