package grpc

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/" + serviceName + "/GetAvailableSlots"}

func TestRequestTimeout(t *testing.T) {
	icpt := RequestTimeout(time.Second)

	t.Run("adds a deadline", func(t *testing.T) {
		_, err := icpt(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
			dl, ok := ctx.Deadline()
			if !ok {
				t.Fatalf("expected deadline")
			}
			if until := time.Until(dl); until > time.Second || until <= 0 {
				t.Fatalf("deadline in %s, want within 1s", until)
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("interceptor error: %v", err)
		}
	})

	t.Run("keeps the client deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		want, _ := ctx.Deadline()

		_, _ = icpt(ctx, nil, testInfo, func(ctx context.Context, req any) (any, error) {
			got, _ := ctx.Deadline()
			if !got.Equal(want) {
				t.Fatalf("deadline = %s, want %s", got, want)
			}
			return nil, nil
		})
	})
}

func TestRateLimit(t *testing.T) {
	icpt := RateLimit(0.001, 2, slog.Default())
	calls := 0
	handler := func(ctx context.Context, req any) (any, error) {
		calls++
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		if _, err := icpt(context.Background(), nil, testInfo, handler); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	_, err := icpt(context.Background(), nil, testInfo, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.ResourceExhausted)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	icpt := RateLimit(0, 0, nil)
	for i := 0; i < 100; i++ {
		if _, err := icpt(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
			return nil, nil
		}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}
