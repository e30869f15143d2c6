// Package pubsub provides a job queue backed by a Google Cloud Pub/Sub topic
// and subscription, so several service instances can share scan work.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

// jobMessage is the wire form of a queue item.
type jobMessage struct {
	JobID     string                `json:"job_id"`
	Params    crawler.JobParameters `json:"params"`
	Attempt   int                   `json:"attempt"`
	Submitted int64                 `json:"submitted"`
}

// Queue publishes jobs to a topic and receives them from a subscription. A
// message is acked once a worker has taken it, so delivery is at most once
// per worker hand-off.
type Queue struct {
	client     *pubsub.Client
	publisher  *pubsub.Publisher
	subscriber *pubsub.Subscriber
	items      chan crawler.QueueItem
	done       chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
	ownsClient bool
	logger     *zap.Logger
}

// Open connects to Pub/Sub, checks the topic and subscription exist, and
// starts receiving.
func Open(
	ctx context.Context,
	projectID, topicID, subscriptionID string,
	logger *zap.Logger,
	opts ...option.ClientOption,
) (*Queue, error) {
	if projectID == "" || topicID == "" || subscriptionID == "" {
		return nil, fmt.Errorf("pubsub project, job topic and subscription are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	if _, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get job topic %q: %w", topicID, err)
	}
	sub := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subscriptionID)
	req := &pubsubpb.GetSubscriptionRequest{Subscription: sub}
	if _, err := client.SubscriptionAdminClient.GetSubscription(ctx, req); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get job subscription %q: %w", subscriptionID, err)
	}
	q := New(client, topic, sub, logger)
	q.ownsClient = true
	return q, nil
}

// New starts a queue over an existing client. Topic and subscription are
// fully qualified resource names.
func New(client *pubsub.Client, topic, subscription string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	subscriber := client.Subscriber(subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		client:     client,
		publisher:  client.Publisher(topic),
		subscriber: subscriber,
		items:      make(chan crawler.QueueItem),
		done:       make(chan struct{}),
		cancel:     cancel,
		logger:     logger.Named("pubsub_queue"),
	}
	q.wg.Add(1)
	go q.receive(ctx)
	return q
}

func (q *Queue) receive(ctx context.Context) {
	defer q.wg.Done()
	err := q.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var m jobMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil || m.JobID == "" {
			q.logger.Error("dropping malformed job message", zap.String("message_id", msg.ID), zap.Error(err))
			msg.Ack()
			return
		}
		item := crawler.QueueItem{JobID: m.JobID, Params: m.Params, Attempt: m.Attempt, Submitted: m.Submitted}
		select {
		case q.items <- item:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		case <-q.done:
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("job subscription receive stopped", zap.Error(err))
	}
}

// Enqueue publishes a job and waits for the server acknowledgement.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	select {
	case <-q.done:
		return crawler.ErrQueueClosed
	default:
	}
	data, err := json.Marshal(jobMessage{
		JobID:     item.JobID,
		Params:    item.Params,
		Attempt:   item.Attempt,
		Submitted: item.Submitted,
	})
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"job_id": item.JobID}}
	if _, err := q.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish job message: %w", err)
	}
	return nil
}

// Dequeue blocks until a job arrives, the context ends or the queue closes.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return crawler.QueueItem{}, crawler.ErrQueueClosed
	case item := <-q.items:
		return item, nil
	}
}

// Close stops receiving, flushes the publisher and releases the client when
// owned. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.cancel()
		q.wg.Wait()
		q.publisher.Stop()
		if q.ownsClient {
			if err := q.client.Close(); err != nil {
				q.logger.Warn("pubsub client close failed", zap.Error(err))
			}
		}
	})
}
