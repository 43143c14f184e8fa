package asyncx

import (
	"context"
	"errors"
	"testing"
)

func TestAllPreservesOrder(t *testing.T) {
	fns := make([]func(context.Context) (int, error), 5)
	for i := range fns {
		i := i
		fns[i] = func(ctx context.Context) (int, error) { return i * 10, nil }
	}

	out, err := All(context.Background(), fns...)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	for i, v := range out {
		if v != i*10 {
			t.Fatalf("result %d: got %d want %d", i, v, i*10)
		}
	}
}

func TestAllReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := All(context.Background(),
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestAllSettledKeepsSuccessesAlongsideFailures(t *testing.T) {
	boom := errors.New("boom")
	results := AllSettled(context.Background(),
		func(ctx context.Context) (string, error) { return "ok", nil },
		func(ctx context.Context) (string, error) { return "", boom },
	)
	if len(results) != 2 {
		t.Fatalf("expected 2 settled results, got %d", len(results))
	}
	if !results[0].OK() || results[0].Value != "ok" {
		t.Fatalf("expected first result to succeed, got %+v", results[0])
	}
	if results[1].OK() {
		t.Fatalf("expected second result to carry the error")
	}
}

func TestPoolBoundsWorkersAndPreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	out, err := Pool(context.Background(), 4, items, func(ctx context.Context, v int) (int, error) {
		return v * 2, nil
	})
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	for i, v := range out {
		if v != i*2 {
			t.Fatalf("result %d: got %d want %d", i, v, i*2)
		}
	}
}
