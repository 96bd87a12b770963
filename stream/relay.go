package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"hintro-api/domain"
)

// Relay consumes board events from the redis channel and hands them to the
// hub. Every instance runs one relay, so a mutation accepted anywhere reaches
// the subscribers of every instance. Blocks until ctx is cancelled,
// reconnecting when the pubsub channel closes.
func Relay(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, hub *Hub) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse board event: %v", err)
					continue
				}
				if ev.BoardID == "" {
					logger.Warn("board event without board id dropped")
					continue
				}
				hub.Broadcast(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
