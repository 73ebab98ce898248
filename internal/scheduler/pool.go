package scheduler

import "sync"

// RunInPool fans queue out to at most maxWorkers goroutines and closes
// completed once the queue is drained. The queue must already be closed.
func RunInPool[In any, Out any](worker func(In) Out, queue chan In, completed chan Out, maxWorkers int) {
	workers := min(len(queue), maxWorkers)

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for {
					next, ok := <-queue
					if !ok {
						return
					}

					completed <- worker(next)
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}
