package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Handler processes one decoded job.
type Handler interface {
    Handle(ctx context.Context, job Job) error
}

// Consumer reads every job queue from RabbitMQ and hands deliveries to a
// Handler.  Failed jobs are rejected without requeue so a poison message
// cannot spin the loop.
type Consumer struct {
    url      string
    handler  Handler
    log      *zap.Logger
    prefetch int
}

func NewConsumer(url string, h Handler, log *zap.Logger) *Consumer {
    if log == nil {
        log = zap.NewNop()
    }
    return &Consumer{url: url, handler: h, log: log.With(zap.String("component", "consumer")), prefetch: 50}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff (capped at 30s) whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(c.prefetch, 0, false); err != nil {
        c.log.Warn("set qos failed", zap.Error(err))
    }
    if err := declare(ch); err != nil {
        return err
    }

    deliveries := make(chan amqp.Delivery)
    for _, q := range Kinds {
        msgs, err := ch.Consume(q, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("consume %s: %w", q, err)
        }
        go func(msgs <-chan amqp.Delivery) {
            for d := range msgs {
                select {
                case deliveries <- d:
                case <-ctx.Done():
                    return
                }
            }
        }(msgs)
    }

    closed := conn.NotifyClose(make(chan *amqp.Error, 1))
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case e := <-closed:
            if e == nil {
                return errors.New("connection closed")
            }
            return e
        case d := <-deliveries:
            if err := c.dispatch(ctx, d.Body); err != nil {
                c.log.Error("job failed", zap.String("queue", d.RoutingKey), zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) dispatch(ctx context.Context, body []byte) error {
    var job Job
    if err := json.Unmarshal(body, &job); err != nil {
        return fmt.Errorf("unmarshal job: %w", err)
    }
    return c.handler.Handle(ctx, job)
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
