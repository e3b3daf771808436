package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/techsheet/internal/infrastructure/resilience"
)

const queueGroup = "workers"

// processRequest is the wire payload of one processing request. Bare ids
// from older publishers are still accepted.
type processRequest struct {
	SpecID     string    `json:"spec_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
	onLag    func(seconds float64)
	now      func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
	// LagObserver receives the time a request spent in the queue.
	LagObserver func(seconds float64)
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("techsheet"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
		onLag:    options.LagObserver,
		now:      time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishSpecification(ctx context.Context, specID string) error {
	payload, err := encodeRequest(specID, q.now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeSpecifications blocks until ctx is done, then drains the
// subscription so in-flight runs finish.
func (q *Queue) SubscribeSpecifications(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		req, err := decodeRequest(msg.Data)
		if err != nil {
			q.logger.Warn("queue_message_rejected", "error", err)
			return
		}
		if q.onLag != nil && !req.EnqueuedAt.IsZero() {
			q.onLag(q.now().Sub(req.EnqueuedAt).Seconds())
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req.SpecID); err != nil {
			q.logger.Error("worker_handler_failed", "spec_id", req.SpecID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeRequest(specID string, now time.Time) ([]byte, error) {
	if strings.TrimSpace(specID) == "" {
		return nil, fmt.Errorf("nats publish: empty specification id")
	}
	return json.Marshal(processRequest{SpecID: specID, EnqueuedAt: now.UTC()})
}

func decodeRequest(data []byte) (processRequest, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return processRequest{}, fmt.Errorf("empty message")
	}
	if !strings.HasPrefix(raw, "{") {
		return processRequest{SpecID: raw}, nil
	}
	var req processRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return processRequest{}, fmt.Errorf("decode message: %w", err)
	}
	if strings.TrimSpace(req.SpecID) == "" {
		return processRequest{}, fmt.Errorf("message without spec_id")
	}
	return req, nil
}
