package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunAllKeepsSuccessfulUnits(t *testing.T) {
	var units []Unit[int]
	for i := 0; i < 10; i++ {
		i := i
		units = append(units, func(ctx context.Context) (*int, error) {
			if i%3 == 0 {
				return nil, fmt.Errorf("unit %d failed", i)
			}
			v := i
			return &v, nil
		})
	}

	out := RunAll(context.Background(), units, 4)
	assert.Len(t, out, 6, "failing units shrink the aggregate, nothing more")
}

func TestRunAllToleratesPanics(t *testing.T) {
	units := []Unit[string]{
		func(ctx context.Context) (*string, error) { panic("boom") },
		func(ctx context.Context) (*string, error) { s := "ok"; return &s, nil },
		func(ctx context.Context) (*string, error) { panic(errors.New("worse boom")) },
	}

	out := RunAll(context.Background(), units, 3)
	assert.Len(t, out, 1)
	assert.Equal(t, "ok", *out[0])
}

func TestRunAllRespectsConcurrencyCap(t *testing.T) {
	var current, peak int64
	var units []Unit[int]
	for i := 0; i < 12; i++ {
		units = append(units, func(ctx context.Context) (*int, error) {
			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			v := 1
			return &v, nil
		})
	}

	out := RunAll(context.Background(), units, 3)
	assert.Len(t, out, 12)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestRunAllNilResultsExcluded(t *testing.T) {
	units := []Unit[int]{
		func(ctx context.Context) (*int, error) { return nil, nil },
		func(ctx context.Context) (*int, error) { v := 7; return &v, nil },
	}
	out := RunAll(context.Background(), units, 2)
	assert.Len(t, out, 1)
}

func TestRunAllEmptyInput(t *testing.T) {
	assert.Nil(t, RunAll[int](context.Background(), nil, 4))
}

func TestRunAllDefaultsConcurrency(t *testing.T) {
	units := []Unit[int]{
		func(ctx context.Context) (*int, error) { v := 1; return &v, nil },
	}
	out := RunAll(context.Background(), units, 0)
	assert.Len(t, out, 1)
}
