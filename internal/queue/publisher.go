package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher writes jobs to RabbitMQ.  It keeps one connection and channel
// and re-dials lazily after the broker drops them.  Every job kind has a
// durable queue of the same name on the default exchange.
type Publisher struct {
    url string
    log *zap.Logger
    now func() time.Time

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{url: url, log: log.With(zap.String("component", "publisher")), now: time.Now}
}

// channel returns an open channel, dialing and declaring queues if needed.
// The caller holds p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    if p.conn == nil || p.conn.IsClosed() {
        conn, err := amqp.Dial(p.url)
        if err != nil {
            return nil, fmt.Errorf("dial broker: %w", err)
        }
        p.conn = conn
    }
    ch, err := p.conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("open channel: %w", err)
    }
    if err := declare(ch); err != nil {
        _ = ch.Close()
        return nil, err
    }
    p.ch = ch
    return ch, nil
}

func declare(ch *amqp.Channel) error {
    for _, q := range Kinds {
        if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
            return fmt.Errorf("declare %s: %w", q, err)
        }
    }
    return nil
}

// Publish marshals payload into a Job and sends it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, kind string, payload interface{}) error {
    job, err := NewJob(kind, payload, p.now())
    if err != nil {
        return err
    }
    body, err := json.Marshal(job)
    if err != nil {
        return fmt.Errorf("marshal job: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    ch, err := p.channel()
    if err != nil {
        return err
    }
    err = ch.PublishWithContext(ctx, "", kind, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    job.ID,
        Type:         kind,
        Timestamp:    job.CreatedAt,
        Body:         body,
    })
    if err != nil {
        // drop the channel so the next publish re-dials
        _ = ch.Close()
        p.ch = nil
        return fmt.Errorf("publish %s: %w", kind, err)
    }
    p.log.Debug("job published", zap.String("kind", kind), zap.String("id", job.ID))
    return nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        err := p.conn.Close()
        p.conn = nil
        return err
    }
    return nil
}
