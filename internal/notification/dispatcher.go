package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/shared/metrics"
)

// Provider delivers an intent over one channel
type Provider interface {
	Send(ctx context.Context, intent Intent) error
}

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
	SendTimeout   time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:       4,
		BufferSize:    1000,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
		SendTimeout:   10 * time.Second,
	}
}

// Dispatcher delivers intents in the background. Delivery never reports back to
// the caller: failures are logged and counted.
type Dispatcher struct {
	providers map[Channel]Provider
	config    DispatcherConfig
	logger    *zap.Logger

	queue chan *delivery

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type delivery struct {
	intent   Intent
	attempts int
}

// NewDispatcher creates a dispatcher over the given channel providers
func NewDispatcher(providers map[Channel]Provider, config DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	return &Dispatcher{
		providers: providers,
		config:    config,
		logger:    logger.Named("notification"),
		queue:     make(chan *delivery, config.BufferSize),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the delivery workers
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	d.started = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.logger.Info("notification dispatcher started", zap.Int("workers", d.config.Workers))
	return nil
}

// Stop stops the workers and waits for in-flight sends
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher not started")
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	return nil
}

// Dispatch queues intents for delivery. It never blocks: when the buffer is full
// the intent is dropped and logged.
func (d *Dispatcher) Dispatch(intents ...Intent) {
	for _, intent := range intents {
		d.enqueue(&delivery{intent: intent})
	}
}

func (d *Dispatcher) enqueue(del *delivery) {
	select {
	case d.queue <- del:
	default:
		d.logger.Warn("notification buffer full, dropping intent",
			zap.String("channel", string(del.intent.Channel)),
		)
		metrics.RecordNotificationDelivery(string(del.intent.Channel), false)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case del := <-d.queue:
			d.deliver(ctx, del)
		}
	}
}

// deliver runs one attempt and schedules a retry on failure
func (d *Dispatcher) deliver(ctx context.Context, del *delivery) {
	del.attempts++
	err := d.send(ctx, del.intent)
	if err == nil {
		metrics.RecordNotificationDelivery(string(del.intent.Channel), true)
		return
	}

	if del.attempts >= d.config.RetryAttempts {
		d.logger.Error("notification delivery failed",
			zap.String("channel", string(del.intent.Channel)),
			zap.Int("attempts", del.attempts),
			zap.Error(err),
		)
		metrics.RecordNotificationDelivery(string(del.intent.Channel), false)
		return
	}

	d.logger.Warn("notification delivery failed, retrying",
		zap.String("channel", string(del.intent.Channel)),
		zap.Int("attempt", del.attempts),
		zap.Error(err),
	)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-time.After(d.config.RetryDelay):
			d.enqueue(del)
		case <-d.stopCh:
		case <-ctx.Done():
		}
	}()
}

// send delivers synchronously with the configured timeout
func (d *Dispatcher) send(ctx context.Context, intent Intent) error {
	provider, ok := d.providers[intent.Channel]
	if !ok || provider == nil {
		return fmt.Errorf("no provider for channel %s", intent.Channel)
	}

	if d.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.SendTimeout)
		defer cancel()
	}
	return provider.Send(ctx, intent)
}
