package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachRow splits the rows [minY, maxY) into at most ParallelFactor contiguous bands and
// calls f for every row of every band. Each row is visited exactly once.
func ParallelForEachRow(minY, maxY int, f func(y int)) {
	rows := maxY - minY
	if rows <= 0 {
		return
	}
	bands := MinInt(ParallelFactor, rows)
	bandSize := rows / bands
	extra := rows % bands

	var wait sync.WaitGroup
	wait.Add(bands)
	from := minY
	for band := 0; band < bands; band++ {
		to := from + bandSize
		// The first `extra` bands take one more row each.
		if band < extra {
			to++
		}
		start, end := from, to
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			for y := start; y < end; y++ {
				f(y)
			}
		})
		from = to
	}
	wait.Wait()
}

// GetInParallel runs all functions in parallel, return is elapsed time, the results in the order of
// `fs`, and an error combining every non-cancellation failure. The first failure cancels the context
// handed to the remaining functions.
func GetInParallel[T any](ctx context.Context, fs []func(ctx context.Context) (T, error)) (time.Duration, []T, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	var bigError error
	var bigErrorMutex sync.Mutex
	storeError := func(err error) {
		bigErrorMutex.Lock()
		defer bigErrorMutex.Unlock()
		if bigError == nil || !errors.Is(err, context.Canceled) {
			bigError = multierr.Combine(bigError, err)
		}
	}

	results := make([]T, len(fs))

	helper := func(f func(ctx context.Context) (T, error), i int) {
		defer func() {
			if thePanic := recover(); thePanic != nil {
				storeError(fmt.Errorf("got panic running something in parallel: %v", thePanic))
				cancel()
			}
			wg.Done()
		}()
		value, err := f(ctx)
		if err != nil {
			storeError(err)
			cancel()
			return
		}
		results[i] = value
	}

	for i, f := range fs {
		wg.Add(1)
		go helper(f, i)
	}

	wg.Wait()
	return time.Since(start), results, bigError
}
