package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/service"
)

// NotificationWorker drains the async event queue into notification
// handlers.
type NotificationWorker struct {
	dispatcher *events.AsyncDispatcher
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// StartNotificationWorker registers notification handlers and starts n
// goroutines draining the dispatcher until ctx is cancelled or the
// dispatcher is closed.
func StartNotificationWorker(ctx context.Context, dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService, n int, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &NotificationWorker{dispatcher: dispatcher, logger: logger}
	if notificationService == nil || dispatcher == nil {
		return w
	}
	notificationService.RegisterHandlers()

	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			dispatcher.Drain(ctx)
			logger.Debug("notification worker stopped", zap.Int("worker", id))
		}(i)
	}
	logger.Info("notification workers started", zap.Int("count", n))
	return w
}

// Stop closes the dispatcher and waits for queued events to be delivered or
// for ctx to expire.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	if w.dispatcher != nil {
		w.dispatcher.Close()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
