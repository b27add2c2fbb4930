package utils

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// RunInPool applies worker to every input using at most maxWorkers goroutines
// and streams each outcome on the returned channel, which is closed once all
// inputs are done. Inputs not yet started when ctx ends are reported with the
// context's error.
func RunInPool[In any, Out any](ctx context.Context, inputs []In, maxWorkers int, worker func(context.Context, In) (Out, error)) <-chan CompletedTask[Out] {
	completed := make(chan CompletedTask[Out], len(inputs))

	workers := max(min(len(inputs), maxWorkers), 1)

	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()

			for i := range queue {
				if err := ctx.Err(); err != nil {
					completed <- CompletedTask[Out]{Index: i, Error: err}
					continue
				}

				res, err := worker(ctx, inputs[i])
				completed <- CompletedTask[Out]{Index: i, Result: res, Error: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(completed)
	}()

	return completed
}
