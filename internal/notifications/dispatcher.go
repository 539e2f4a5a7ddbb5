package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"greenroom/internal/middleware"
	"greenroom/internal/observability"
)

// EmailSender delivers a single notification email to the affected user.
// Delivery is an external collaborator; implementations must not be relied on
// for correctness.
type EmailSender interface {
	SendAccessGranted(ctx context.Context, email, fullName string) error
	SendExpiryWarning(ctx context.Context, email, fullName string) error
	SendAccessExpired(ctx context.Context, email, fullName string) error
}

// AdminSender delivers operational alerts to the admin channel.
type AdminSender interface {
	SendAdminAlert(ctx context.Context, event Event) error
}

// Dispatcher consumes events from a buffered queue and delivers them via the
// configured senders. Emission never blocks: when the queue is full the event
// is dropped and logged.
type Dispatcher struct {
	email  EmailSender
	admin  AdminSender
	events chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given senders. Either sender
// may be nil, in which case that delivery channel is skipped.
func NewDispatcher(email EmailSender, admin AdminSender) *Dispatcher {
	return &Dispatcher{
		email:  email,
		admin:  admin,
		events: make(chan Event, 256),
	}
}

// Emit enqueues an event for delivery without blocking the caller.
func (d *Dispatcher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case d.events <- event:
	default:
		observability.NotificationsDispatched.WithLabelValues(string(event.Type), "dropped").Inc()
		middleware.Logger.Warn("notification queue full, event dropped",
			slog.String("event", string(event.Type)),
			slog.String("email", event.Email),
		)
	}
}

// QueuedEvents reports how many events are waiting for delivery.
func (d *Dispatcher) QueuedEvents() int {
	return len(d.events)
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-d.events:
				if !ok {
					return
				}
				d.deliver(ctx, event)
			}
		}
	}()
}

// Drain delivers everything still queued and stops the dispatcher. Used by
// the orchestration job so a short-lived process does not exit before its
// notifications leave.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		select {
		case event := <-d.events:
			d.deliver(ctx, event)
		default:
			d.Shutdown()
			return
		}
	}
}

// Shutdown stops the delivery goroutine.
func (d *Dispatcher) Shutdown() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	var err error

	switch event.Type {
	case EventAccessGranted:
		if d.email != nil {
			err = d.email.SendAccessGranted(ctx, event.Email, event.FullName)
		}
	case EventExpiryWarning:
		if d.email != nil {
			err = d.email.SendExpiryWarning(ctx, event.Email, event.FullName)
		}
	case EventAccessExpired:
		if d.email != nil {
			err = d.email.SendAccessExpired(ctx, event.Email, event.FullName)
		}
	case EventEscalation, EventJobReport:
		if d.admin != nil {
			err = d.admin.SendAdminAlert(ctx, event)
		}
	}

	if err != nil {
		observability.NotificationsDispatched.WithLabelValues(string(event.Type), "error").Inc()
		middleware.Logger.Error("notification delivery failed",
			slog.String("event", string(event.Type)),
			slog.String("email", event.Email),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.NotificationsDispatched.WithLabelValues(string(event.Type), "ok").Inc()
}
