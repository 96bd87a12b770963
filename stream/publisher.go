package stream

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"hintro-api/domain"
)

// Publisher pushes committed events onto the shared redis channel. Publish
// never blocks: events are handed to a buffered worker pool and the HTTP
// response path returns as soon as persistence completed, independent of
// fan-out. A saturated buffer drops the event with a warning, which is within
// the at-most-once delivery contract.
type Publisher struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger

	jobs      chan domain.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	timeout   time.Duration
}

// NewPublisher starts the worker pool. Worker count and buffer size come from
// PUBLISH_WORKERS and PUBLISH_BUFFER when set.
func NewPublisher(rc *redis.Client, channel string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	workers := envInt("PUBLISH_WORKERS", 4)
	buffer := envInt("PUBLISH_BUFFER", 1024)
	p := &Publisher{
		rc:      rc,
		channel: channel,
		logger:  logger,
		jobs:    make(chan domain.Event, buffer),
		timeout: envDur("PUBLISH_TIMEOUT", 10*time.Second),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d", workers, buffer)
	return p
}

// Publish enqueues an event for delivery. It never blocks.
func (p *Publisher) Publish(ev domain.Event) {
	select {
	case p.jobs <- ev:
	default:
		p.logger.WithFields(log.Fields{"board": ev.BoardID, "kind": ev.Kind}).Warn("publish buffer saturated, event dropped")
	}
}

// Close stops the workers after draining buffered events.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for ev := range p.jobs {
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.Errorf("marshal %s event: %v", ev.Kind, err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.rc.Publish(ctx, p.channel, data).Err()
		cancel()
		if err != nil {
			// The mutation already succeeded; a lost broadcast only delays
			// subscribers until their next full fetch.
			p.logger.WithFields(log.Fields{"board": ev.BoardID, "kind": ev.Kind}).Errorf("publish failed: %v", err)
		}
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
