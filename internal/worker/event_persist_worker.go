package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"adjusterhub/internal/event"
	"adjusterhub/internal/model"
	"adjusterhub/internal/platform/rabbitmq"
	"adjusterhub/internal/repository"
)

// errUndecodable marks deliveries that can never succeed and must not be requeued.
var errUndecodable = errors.New("undecodable event")

// EventPersistWorker drains the events queue into the database.
type EventPersistWorker struct {
	conn         *amqp.Connection
	chatMessages *repository.ChatMessageRepository
	events       *repository.SecurityEventRepository
	queueName    string
	log          *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventPersistWorker(
	conn *amqp.Connection,
	chatMessages *repository.ChatMessageRepository,
	events *repository.SecurityEventRepository,
	queueName string,
	log *zap.Logger,
) *EventPersistWorker {
	return &EventPersistWorker{
		conn:         conn,
		chatMessages: chatMessages,
		events:       events,
		queueName:    queueName,
		log:          log,
	}
}

func (w *EventPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("event deliveries closed", zap.String("queue", w.queueName))
					return
				}
				w.deliver(d)
			}
		}
	}()

	w.log.Info("event persist worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *EventPersistWorker) deliver(d amqp.Delivery) {
	err := w.Handle(d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errUndecodable):
		w.log.Error("drop undecodable event", zap.String("type", d.Type), zap.Error(err))
		_ = d.Nack(false, false)
	default:
		// One redelivery for transient database errors, then drop.
		requeue := !d.Redelivered
		w.log.Error("persist event failed",
			zap.String("type", d.Type),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		_ = d.Nack(false, requeue)
	}
}

// Handle decodes one envelope and writes its payload.
func (w *EventPersistWorker) Handle(body []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}

	switch env.Type {
	case event.TypeChatMessage:
		var msg model.ChatMessage
		if err := env.Decode(&msg); err != nil {
			return fmt.Errorf("%w: %v", errUndecodable, err)
		}
		return w.chatMessages.Create(&msg)
	case event.TypeSecurityEvent:
		var ev model.SecurityEvent
		if err := env.Decode(&ev); err != nil {
			return fmt.Errorf("%w: %v", errUndecodable, err)
		}
		return w.events.Create(&ev)
	default:
		return fmt.Errorf("%w: unknown type %q", errUndecodable, env.Type)
	}
}

func (w *EventPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
