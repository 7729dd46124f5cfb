package adapter

import (
	"context"
	"testing"
)

func TestPaginate_StopsOnShortPage(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, offset, pageSize int) (Page[int], error) {
		calls++
		if offset == 0 {
			return Page[int]{Rows: []int{1, 2, 3}}, nil
		}
		return Page[int]{Rows: []int{4}}, nil
	}

	got, err := Paginate(context.Background(), 3, fetch)
	if err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
	if calls != 2 {
		t.Errorf("expected 2 fetch calls, got %d", calls)
	}
}

func TestPaginate_StopsOnTotal(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, offset, pageSize int) (Page[int], error) {
		calls++
		return Page[int]{Rows: []int{1, 2}, Total: 4}, nil
	}

	got, err := Paginate(context.Background(), 2, fetch)
	if err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d rows, want 4", len(got))
	}
	if calls != 2 {
		t.Errorf("expected 2 fetch calls, got %d", calls)
	}
}
