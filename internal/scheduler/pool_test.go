package scheduler_test

import (
	"fmt"
	"testing"
	"time"

	"waitcast/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInPool(t *testing.T) {
	worker := func(i int) string {
		time.Sleep(time.Duration(i%3) * time.Millisecond)
		return fmt.Sprintf("%d-%d", i, i*i)
	}

	queue := make(chan int, 10)
	for i := 0; i < 10; i++ {
		queue <- i
	}
	close(queue)

	completed := make(chan string, 10)
	scheduler.RunInPool(worker, queue, completed, 5)

	results := make(map[string]bool)
	for result := range completed {
		results[result] = true
	}

	require.Len(t, results, 10)
	assert.True(t, results["7-49"])
}

func TestRunInPoolEmptyQueue(t *testing.T) {
	queue := make(chan int)
	close(queue)

	completed := make(chan int)
	scheduler.RunInPool(func(i int) int { return i }, queue, completed, 5)

	_, open := <-completed
	assert.False(t, open)
}
