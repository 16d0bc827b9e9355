// Package testing provides test utilities for gridpower.
//
// Using t.Fatal or t.FailNow in a goroutine does not stop the test, so
// goroutines report through GoroutineTest instead. The stream fixtures in
// readers.go reproduce the chunk boundaries and transport failures an ingest
// session sees in production.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest provides safe testing utilities for goroutines.
//
// Using t.Fatal or t.FailNow in a goroutine causes the test to hang because
// these functions call runtime.Goexit() which only exits the current goroutine,
// not the test goroutine. This type provides the error channel pattern as a
// safe alternative.
//
// Example usage:
//
//	func TestConcurrentOperations(t *testing.T) {
//	    gt := testutil.NewGoroutineTest(t)
//	    defer gt.Wait()
//	
//	    gt.Go(func() error {
//	        result, err := someOperation()
//	        if err != nil {
//	            return fmt.Errorf("operation failed: %w", err)
//	        }
//	        if result != expected {
//	            return fmt.Errorf("got %v, want %v", result, expected)
//	        }
//	        return nil
//	    })
//	}
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100), // buffered to avoid blocking
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewGoroutineTestWithTimeout creates a GoroutineTest with a timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs a function in a goroutine and collects any errors.
//
// The function should return an error instead of calling t.Fatal.
// All errors are collected and reported when Wait() is called.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				// Buffer full, log to prevent blocking
				gt.t.Logf("Error channel full, dropping error: %v", err)
			}
		}
	}()
}

// GoWithContext runs a function with context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			select {
			case gt.errors <- err:
			case <-gt.ctx.Done():
				// Context cancelled, ignore error
			}
		}
	}()
}

// Wait waits for all goroutines to complete and fails the test if any errors occurred.
//
// This should be called with defer right after creating the GoroutineTest:
//
//	gt := testutil.NewGoroutineTest(t)
//	defer gt.Wait()
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("Goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Context returns the context for this test.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel cancels the context, signaling goroutines to stop.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// =============================================================================
// Polling Helper
// =============================================================================

// Eventually waits for a condition to become true.
//
// Example:
//
//	err := testutil.Eventually(5*time.Second, 100*time.Millisecond, func() bool {
//	    return svc.Stats().Ingestion.SessionsActive == 0
//	})
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
