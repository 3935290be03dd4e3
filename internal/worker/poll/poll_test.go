package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// mockRefresher はCatalogRefresherのモック。
type mockRefresher struct {
	refreshFn func(ctx context.Context, token string) error
	calls     atomic.Int64
}

func (m *mockRefresher) Refresh(ctx context.Context, token string) error {
	m.calls.Add(1)
	if m.refreshFn != nil {
		return m.refreshFn(ctx, token)
	}
	return nil
}

func TestPoller_RunsImmediatelyAndOnTick(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(ctx context.Context, token string) error {
			if token != "service-token" {
				t.Errorf("token = %q, want service-token", token)
			}
			return nil
		},
	}
	p := NewPoller(refresher, slog.New(slog.NewTextHandler(io.Discard, nil)), "service-token")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx, 20*time.Millisecond)
		close(done)
	}()

	// 起動直後の1回 + ティック数回が実行されるのを待つ
	deadline := time.After(2 * time.Second)
	for refresher.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want at least 3", refresher.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}

func TestPoller_ContinuesAfterRefreshFailure(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(ctx context.Context, token string) error {
			return errors.New("backend down")
		},
	}
	p := NewPoller(refresher, slog.New(slog.NewTextHandler(io.Discard, nil)), "service-token")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx, 20*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for refresher.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want at least 2 (failure must not stop the loop)", refresher.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPoller_DisabledWithoutServiceToken(t *testing.T) {
	refresher := &mockRefresher{}
	p := NewPoller(refresher, slog.New(slog.NewTextHandler(io.Discard, nil)), "")

	done := make(chan struct{})
	go func() {
		p.Start(context.Background(), 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller should return immediately without a service token")
	}
	if refresher.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", refresher.calls.Load())
	}
}
