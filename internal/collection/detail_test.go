package collection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDetailLoader_LoadsOnceAndCaches(t *testing.T) {
	var calls atomic.Int32
	l := NewDetailLoader(func(ctx context.Context, id string) (string, error) {
		calls.Add(1)
		return "detail of " + id, nil
	})
	ctx := context.Background()

	d := l.Toggle(ctx, "7")
	if d.Status != DetailLoaded || d.Value != "detail of 7" {
		t.Fatalf("first open = %+v; want loaded", d)
	}

	if d := l.Toggle(ctx, "7"); d.Status != DetailClosed {
		t.Errorf("second toggle = %v; want closed", d.Status)
	}
	if d := l.Toggle(ctx, "7"); d.Status != DetailLoaded {
		t.Errorf("reopen = %v; want loaded", d.Status)
	}
	if calls.Load() != 1 {
		t.Errorf("fetches = %d; reopening must use the cached detail", calls.Load())
	}
}

func TestDetailLoader_FailureRetriesOnReopen(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	l := NewDetailLoader(func(ctx context.Context, id string) (int, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return 42, nil
	})
	ctx := context.Background()

	d := l.Open(ctx, "1")
	if d.Status != DetailFailed || !errors.Is(d.Err, boom) {
		t.Fatalf("first open = %+v; want failed", d)
	}
	if other := l.Get("2"); other.Status != DetailClosed {
		t.Error("a failure must stay scoped to its row")
	}

	l.Close("1")
	d = l.Open(ctx, "1")
	if d.Status != DetailLoaded || d.Value != 42 {
		t.Errorf("reopen = %+v; want loaded 42", d)
	}
}

func TestDetailLoader_ConcurrentOpensShareFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	l := NewDetailLoader(func(ctx context.Context, id string) (string, error) {
		calls.Add(1)
		<-release
		return id, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Open(context.Background(), "x")
		}()
	}
	for l.Get("x").Status != DetailLoading {
	}
	close(release)
	wg.Wait()

	if calls.Load() > 1 {
		t.Errorf("fetches = %d; concurrent opens should share one", calls.Load())
	}
	if l.Get("x").Status != DetailLoaded {
		t.Errorf("status = %v; want loaded", l.Get("x").Status)
	}
}

func TestDetailLoader_Forget(t *testing.T) {
	l := NewDetailLoader(func(ctx context.Context, id string) (string, error) { return id, nil })
	l.Open(context.Background(), "1")
	l.Forget("1")
	if d := l.Get("1"); d.Status != DetailClosed || d.Value != "" {
		t.Errorf("after Forget = %+v; want zero", d)
	}
}

func TestDetailLoader_CancelledOpenerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	l := NewDetailLoader(func(ctx context.Context, id string) (string, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "detail of " + id, nil
	})

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan Detail[string], 1)
	go func() { firstDone <- l.Open(first, "x") }()
	<-started

	secondDone := make(chan Detail[string], 1)
	go func() { secondDone <- l.Open(context.Background(), "x") }()

	cancel()
	if d := <-firstDone; d.Status != DetailFailed || !errors.Is(d.Err, context.Canceled) {
		t.Errorf("cancelled opener = %+v; want failed with context.Canceled", d)
	}

	close(release)
	if d := <-secondDone; d.Status != DetailLoaded || d.Value != "detail of x" {
		t.Errorf("second opener = %+v; want loaded", d)
	}
	if d := l.Get("x"); d.Status != DetailLoaded {
		t.Errorf("row = %v; want loaded", d.Status)
	}
}
