// Package watch connects stream progress to the status board: Publisher
// pushes a run's progress, and Follow and the formatters read it back for
// the status and watch commands.
package watch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dyluth/spigot/internal/stream"
	"github.com/dyluth/spigot/pkg/statusboard"
)

// Board is the subset of statusboard.Client the publisher needs.
type Board interface {
	Publish(ctx context.Context, e *statusboard.Event) error
}

// Publisher implements stream.ProgressSink. Reports are handed to a
// background goroutine through a one-slot mailbox, so a slow or unreachable
// Redis never stalls the digit loop; an unsent report is replaced by a newer
// one.
type Publisher struct {
	board     Board
	instance  string
	host      string
	outputDir string
	timeout   time.Duration
	logger    *slog.Logger

	updates chan statusboard.Event
	done    chan struct{}
	once    sync.Once
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublishTimeout bounds each Redis round trip (default 2s).
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher starts publishing reports for instance. Call Close after the
// run ends to flush the final report.
func NewPublisher(board Board, instance, outputDir string, opts ...PublisherOption) *Publisher {
	host, _ := os.Hostname()
	p := &Publisher{
		board:     board,
		instance:  instance,
		host:      host,
		outputDir: outputDir,
		timeout:   2 * time.Second,
		logger:    slog.Default(),
		updates:   make(chan statusboard.Event, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "statusboard")
	go p.loop()
	return p
}

// Report queues p, replacing any report not yet sent. It must not be called
// after Close.
func (p *Publisher) Report(pr stream.Progress) {
	e := p.event(pr)
	for {
		select {
		case p.updates <- e:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

// Close sends the last queued report and stops the publisher.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		close(p.updates)
		<-p.done
	})
	return nil
}

func (p *Publisher) loop() {
	defer close(p.done)

	var lastErr string
	for e := range p.updates {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.board.Publish(ctx, &e)
		cancel()

		switch {
		case err != nil && err.Error() != lastErr:
			p.logger.Warn("status publish failed", "error", err)
			lastErr = err.Error()
		case err == nil && lastErr != "":
			p.logger.Info("status publish recovered")
			lastErr = ""
		}
	}
}

func (p *Publisher) event(pr stream.Progress) statusboard.Event {
	at := pr.At
	if at.IsZero() {
		at = time.Now()
	}
	return statusboard.Event{
		RunID:         pr.RunID,
		Instance:      p.instance,
		Host:          p.host,
		OutputDir:     p.outputDir,
		Status:        string(pr.Status),
		DigitsWritten: pr.DigitsWritten,
		StartDigits:   pr.StartDigits,
		Resumed:       pr.Resumed,
		Rate:          pr.Rate,
		SmoothedRate:  pr.SmoothedRate,
		Reason:        pr.Reason,
		TimestampMs:   at.UnixMilli(),
	}
}
