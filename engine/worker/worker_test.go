package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorker_Enqueue_And_Stop(t *testing.T) {
	w := New(8)
	w.Start()
	defer w.Stop(time.Second)

	var count int64
	for i := 0; i < 10; i++ {
		if err := w.Enqueue(Func(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := w.RunSync(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("run sync: %v", err)
	}

	if c := atomic.LoadInt64(&count); c < 10 {
		t.Fatalf("want >=10 ops applied, got %d", c)
	}
}

func TestWorker_Tick(t *testing.T) {
	var ticks int64
	w := New(1, WithTick(2*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&ticks, 1)
	}))
	w.Start()
	time.Sleep(30 * time.Millisecond)
	if !w.Stop(time.Second) {
		t.Fatal("stop timed out")
	}
	if atomic.LoadInt64(&ticks) == 0 {
		t.Fatal("tick never ran")
	}
}

func TestWorker_RestartAfterStop(t *testing.T) {
	w := New(4)
	w.Start()
	if !w.Stop(500 * time.Millisecond) {
		t.Fatal("stop timed out")
	}
	if w.Running() {
		t.Fatal("still running after stop")
	}
	if err := w.Enqueue(Func(func(context.Context) error { return nil })); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("want ErrNotRunning, got %v", err)
	}

	w.Start()
	defer w.Stop(time.Second)
	want := errors.New("boom")
	if err := w.RunSync(func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestWorker_StopTimeout(t *testing.T) {
	w := New(1)
	w.Start()
	release := make(chan struct{})
	started := make(chan struct{})
	if err := w.Enqueue(Func(func(context.Context) error {
		close(started)
		<-release
		return nil
	})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	if w.Stop(10 * time.Millisecond) {
		t.Fatal("stop should time out while an op is blocked")
	}
	close(release)
	// Stopped either way; a second stop is a no-op.
	if !w.Stop(10 * time.Millisecond) {
		t.Fatal("second stop should report success")
	}
}

func TestWorker_RunSyncWhenStopped(t *testing.T) {
	w := New(1)
	ran := false
	if err := w.RunSync(func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("fn did not run inline")
	}
}
