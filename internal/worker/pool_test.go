package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPoolExecutesSubmittedJobs(t *testing.T) {
	// The queue holds all 10 jobs, so no Submit can be rejected even if
	// neither worker has picked up a job yet.
	p := NewPool(Config{Workers: 2, QueueSize: 10})
	defer p.Close()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		job := JobFunc(func(ctx context.Context) error {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
		if err := p.Submit(job); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if ran != 10 {
		t.Errorf("ran = %d, want 10", ran)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 1})

	block := make(chan struct{})
	// Occupy the single worker, then fill the single queue slot. The
	// blocker may not have been picked up yet, so keep submitting until
	// the pool pushes back.
	deadline := time.After(time.Second)
	sawFull := false
	for !sawFull {
		err := p.Submit(JobFunc(func(ctx context.Context) error {
			<-block
			return nil
		}))
		switch {
		case errors.Is(err, ErrQueueFull):
			sawFull = true
		case err != nil:
			t.Fatalf("Submit: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("queue never filled up")
		default:
		}
	}

	close(block)
	p.Close()
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	p.Close()

	err := p.Submit(JobFunc(func(ctx context.Context) error { return nil }))
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolCloseWaitsForRunningJobs(t *testing.T) {
	p := NewPool(Config{Workers: 1})

	done := make(chan struct{})
	if err := p.Submit(JobFunc(func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		close(done)
		return nil
	})); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	p.Close()
	select {
	case <-done:
	default:
		t.Error("Close returned before the running job finished")
	}
}

func TestPoolSurvivesPanickingJob(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	if err := p.Submit(JobFunc(func(ctx context.Context) error {
		defer wg.Done()
		panic("handler bug")
	})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wg.Wait()

	// The worker that recovered must still execute subsequent jobs.
	ran := make(chan struct{})
	if err := p.Submit(JobFunc(func(ctx context.Context) error {
		close(ran)
		return nil
	})); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panicking job")
	}

	if st := p.Stats(); st.Failed != 1 {
		t.Errorf("failed = %d, want 1", st.Failed)
	}
}
