package kafka

import (
	"context"
	"log"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message was fully processed and the
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work(ctx, jobs, h, c.commit)
		}()
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			close(jobs)
			wg.Wait()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) error {
	return c.r.CommitMessages(ctx, m)
}

// work drains jobs until the channel closes. A handler failure is logged and
// the offset stays uncommitted, so the message redelivers after a restart or
// rebalance. Workers never block on anything but the jobs channel.
func work(ctx context.Context, jobs <-chan kafka.Message, h Handler, commit func(context.Context, kafka.Message) error) {
	for m := range jobs {
		if err := h(ctx, m); err != nil {
			log.Printf("[kafka] handle topic=%s partition=%d offset=%d: %v", m.Topic, m.Partition, m.Offset, err)
			continue
		}
		if err := commit(ctx, m); err != nil {
			log.Printf("[kafka] commit topic=%s partition=%d offset=%d: %v", m.Topic, m.Partition, m.Offset, err)
		}
	}
}
