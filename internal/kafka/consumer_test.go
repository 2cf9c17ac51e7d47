package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Workers on a quiet topic must keep draining even when every message fails;
// a handler error may not wedge the pool.
func TestWork_FailingHandlerNeverBlocks(t *testing.T) {
	const n = 200
	jobs := make(chan kafka.Message) // unbuffered: any stall deadlocks the feed

	var handled int
	var mu sync.Mutex
	h := func(ctx context.Context, m kafka.Message) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return errors.New("boom")
	}
	commit := func(ctx context.Context, m kafka.Message) error {
		t.Error("commit called for a failed message")
		return nil
	}

	done := make(chan struct{})
	go func() {
		work(context.Background(), jobs, h, commit)
		close(done)
	}()

	for i := 0; i < n; i++ {
		select {
		case jobs <- kafka.Message{Offset: int64(i)}:
		case <-time.After(2 * time.Second):
			t.Fatalf("worker stalled at message %d", i)
		}
	}
	close(jobs)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after channel close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, handled)
}

func TestWork_CommitsOnlySuccesses(t *testing.T) {
	jobs := make(chan kafka.Message, 8)

	h := func(ctx context.Context, m kafka.Message) error {
		if m.Offset%2 == 1 {
			return errors.New("odd one out")
		}
		return nil
	}

	var mu sync.Mutex
	var committed []int64
	commit := func(ctx context.Context, m kafka.Message) error {
		mu.Lock()
		committed = append(committed, m.Offset)
		mu.Unlock()
		return nil
	}

	for i := int64(0); i < 6; i++ {
		jobs <- kafka.Message{Offset: i}
	}
	close(jobs)
	work(context.Background(), jobs, h, commit)

	require.Len(t, committed, 3)
	assert.ElementsMatch(t, []int64{0, 2, 4}, committed)
}
