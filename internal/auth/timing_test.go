package auth_test

import (
	"testing"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestWaitFrom_FailureWaitsAtLeastBase(t *testing.T) {
	td := auth.NewTimingDelay(50*time.Millisecond, 0)

	start := time.Now()
	td.WaitFrom(start, false)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitFrom_SuccessDoesNotDelay(t *testing.T) {
	td := auth.NewTimingDelay(500*time.Millisecond, 0)

	start := time.Now()
	td.WaitFrom(start, true)

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitFrom_ElapsedWorkCounts(t *testing.T) {
	td := auth.NewTimingDelay(30*time.Millisecond, 0)

	// Pretend the failure path already burned the budget on a hash compare.
	start := time.Now().Add(-time.Second)
	before := time.Now()
	td.WaitFrom(start, false)

	assert.Less(t, time.Since(before), 20*time.Millisecond)
}

func TestWaitFrom_JitterStaysBounded(t *testing.T) {
	td := auth.NewTimingDelay(10*time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	td.WaitFrom(start, false)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}
