package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"synaptor/internal/model"
)

func TestInProcAlltoall(t *testing.T) {
	const ranks = 3
	x, err := NewInProc(ranks)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if x.Ranks() != ranks {
		t.Fatalf("ranks = %d", x.Ranks())
	}

	ctx := context.Background()
	results := make([][]Batch, ranks)
	errs := make([]error, ranks)

	var wg sync.WaitGroup
	for r := 0; r < ranks; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			send := make([]Batch, ranks)
			for to := range send {
				send[to] = Batch{
					Data: []model.TargetData{
						{SourceLID: model.LocalID(r*10 + to)},
					},
					Complete: r == 2,
				}
			}
			results[r], errs[r] = x.ExchangeTargetData(ctx, model.Rank(r), send)
		}(r)
	}
	wg.Wait()

	for r := 0; r < ranks; r++ {
		if errs[r] != nil {
			t.Fatalf("rank %d: %v", r, errs[r])
		}
		for sender := 0; sender < ranks; sender++ {
			got := results[r][sender]
			if len(got.Data) != 1 || got.Data[0].SourceLID != model.LocalID(sender*10+r) {
				t.Fatalf("rank %d from %d: %+v", r, sender, got)
			}
			if got.Complete != (sender == 2) {
				t.Fatalf("rank %d from %d: complete=%v", r, sender, got.Complete)
			}
		}
	}
}

func TestInProcValidation(t *testing.T) {
	x, err := NewInProc(2)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if _, err := x.ExchangeTargetData(context.Background(), 5, make([]Batch, 2)); err == nil {
		t.Fatal("expected rank range error")
	}
	if _, err := x.ExchangeTargetData(context.Background(), 0, make([]Batch, 1)); err == nil {
		t.Fatal("expected buffer count error")
	}
	if _, err := NewInProc(0); err == nil {
		t.Fatal("expected rank count error")
	}
}

func TestInProcContextCancel(t *testing.T) {
	x, err := NewInProc(2)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Rank 1 never joins the round; rank 0 must give up on the receive.
	if _, err := x.ExchangeTargetData(ctx, 0, make([]Batch, 2)); err == nil {
		t.Fatal("expected context error")
	}
}
