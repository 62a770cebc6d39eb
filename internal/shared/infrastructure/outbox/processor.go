package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/eventbus"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	Now              func() time.Time
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		MaxRetries:       10,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  5 * time.Minute,
	}
}

// Processor polls the outbox and publishes messages to the broker.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a new outbox processor. Zero config fields take the
// defaults.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	def := DefaultProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.RetryBackoffBase <= 0 {
		config.RetryBackoffBase = def.RetryBackoffBase
	}
	if config.RetryBackoffMax <= 0 {
		config.RetryBackoffMax = def.RetryBackoffMax
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
}

// Stop gracefully stops the processor.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning returns true if the processor is running.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce processes a single batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.processBatch(ctx)
}

func (p *Processor) processBatch(ctx context.Context) error {
	now := p.config.Now()
	messages, err := p.repo.GetUnpublished(ctx, now, p.config.BatchSize)
	if err != nil {
		p.recordError(now, err)
		return err
	}
	p.recordProcessed(now, messages)

	for _, msg := range messages {
		if err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload); err != nil {
			p.logger.Warn("failed to publish outbox message",
				"id", msg.ID,
				"routing_key", msg.RoutingKey,
				"retry_count", msg.RetryCount,
				"error", err,
			)
			if p.shouldDeadLetter(msg) {
				p.recordDead(now, err)
				if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error(), now); markErr != nil {
					p.logger.Error("failed to mark outbox message as dead-lettered", "id", msg.ID, "error", markErr)
				}
			} else {
				p.recordFailed(now, err)
				next := now.Add(p.retryBackoff(msg.RetryCount + 1))
				if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
					p.logger.Error("failed to mark outbox message as failed", "id", msg.ID, "error", markErr)
				}
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, msg.ID, now); err != nil {
			p.logger.Error("failed to mark outbox message as published", "id", msg.ID, "error", err)
			continue
		}
		p.recordPublished()
	}
	return nil
}

func (p *Processor) shouldDeadLetter(msg *Message) bool {
	return msg.RetryCount+1 >= p.config.MaxRetries
}

func (p *Processor) retryBackoff(nextRetryCount int) time.Duration {
	backoff := p.config.RetryBackoffBase
	for i := 1; i < nextRetryCount; i++ {
		backoff *= 2
		if backoff >= p.config.RetryBackoffMax {
			return p.config.RetryBackoffMax
		}
	}
	return backoff
}

// Stats returns processor statistics.
type Stats struct {
	IsRunning       bool       `json:"running"`
	PublishedCount  uint64     `json:"published"`
	FailedCount     uint64     `json:"failed"`
	DeadCount       uint64     `json:"dead"`
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	OldestMessageAt *time.Time `json:"oldest_message_at,omitempty"`
}

// GetStats returns current processor statistics.
func (p *Processor) GetStats() Stats {
	p.statsMu.Lock()
	stats := p.stats
	p.statsMu.Unlock()
	stats.IsRunning = p.IsRunning()
	return stats
}

func (p *Processor) recordPublished() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.PublishedCount++
}

func (p *Processor) recordFailed(now time.Time, err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.FailedCount++
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) recordDead(now time.Time, err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.DeadCount++
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) recordError(now time.Time, err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) recordProcessed(now time.Time, messages []*Message) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &now
	if len(messages) == 0 {
		p.stats.LagSeconds = 0
		p.stats.OldestMessageAt = nil
		return
	}

	oldest := messages[0].CreatedAt
	for _, msg := range messages[1:] {
		if msg.CreatedAt.Before(oldest) {
			oldest = msg.CreatedAt
		}
	}
	p.stats.OldestMessageAt = &oldest
	p.stats.LagSeconds = now.Sub(oldest).Seconds()
}
