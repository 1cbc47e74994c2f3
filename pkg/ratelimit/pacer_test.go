package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPacer_SpacesRequests(t *testing.T) {
	p := NewPacer(50*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// First call is immediate, the next two wait ~50ms each.
	if elapsed < 90*time.Millisecond {
		t.Errorf("Expected at least ~100ms of pacing, got %v", elapsed)
	}
}

func TestPacer_Disabled(t *testing.T) {
	tests := []struct {
		name  string
		pacer *Pacer
	}{
		{name: "zero delay", pacer: NewPacer(0, zerolog.Nop())},
		{name: "nil pacer", pacer: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			for i := 0; i < 100; i++ {
				if err := tt.pacer.Wait(context.Background()); err != nil {
					t.Fatalf("Wait() error = %v", err)
				}
			}
			if time.Since(start) > 50*time.Millisecond {
				t.Error("disabled pacer should not wait")
			}
			if tt.pacer.Delay() != 0 {
				t.Errorf("Delay() = %v, want 0", tt.pacer.Delay())
			}
		})
	}
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(time.Hour, zerolog.Nop())
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := p.Wait(ctx); err == nil {
		t.Fatal("Expected error when context expires before the next slot")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait should give up as soon as the deadline cannot be met")
	}
}
