package workers_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Brownie44l1/leaf-api/internal/workers"
	"github.com/stretchr/testify/assert"
)

func TestRunInPool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	queue := make(chan int, 10)
	for i := 0; i < 10; i++ {
		queue <- i
	}
	close(queue)

	output := make(chan workers.CompletedTask[int, string], 10)
	workers.RunInPool(worker, queue, output, 5)

	success, failed := 0, 0
	for result := range output {
		if result.Error != nil {
			failed++
			assert.Equal(t, 3, result.Input%4)
		} else {
			success++
			assert.Equal(t, fmt.Sprintf("%d-%d", result.Input, result.Input), result.Result)
		}
	}

	assert.Equal(t, 8, success)
	assert.Equal(t, 2, failed)
}

func TestRunInPoolBoundsConcurrency(t *testing.T) {
	var active, peak int32
	worker := func(int) (struct{}, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return struct{}{}, nil
	}

	queue := make(chan int, 20)
	for i := 0; i < 20; i++ {
		queue <- i
	}
	close(queue)

	output := make(chan workers.CompletedTask[int, struct{}], 20)
	workers.RunInPool(worker, queue, output, 3)

	count := 0
	for range output {
		count++
	}
	assert.Equal(t, 20, count)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunInPoolEmptyQueue(t *testing.T) {
	queue := make(chan int)
	close(queue)

	output := make(chan workers.CompletedTask[int, int])
	workers.RunInPool(func(i int) (int, error) { return i, nil }, queue, output, 4)

	_, ok := <-output
	assert.False(t, ok)
}
