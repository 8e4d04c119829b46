package dmap

import (
	"context"
	"time"

	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
)

// Update is one playstatusupdate response delivered to a Subscribe
// callback.
type Update struct {
	Revision int
	Nodes    []dmaptlv.Node
}

// Subscribe runs the playstatusupdate long-poll loop: each call blocks
// on the server until its revision changes, then the client resends
// with the new revision. On error the revision resets to 0 and the
// poll restarts after an exponential backoff seeded by initialBackoff
// (doubling, capped at 30s), per §4.7.
func (c *Client) Subscribe(ctx context.Context, initialBackoff time.Duration, onUpdate func(Update)) error {
	if initialBackoff <= 0 {
		initialBackoff = 200 * time.Millisecond
	}
	revision := 0
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		newRev, nodes, err := c.PlayStatus(revision)
		if err != nil {
			c.logger.Warn("playstatusupdate failed, backing off", "error", err, "backoff", backoff)
			revision = 0
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}

		backoff = initialBackoff
		revision = newRev
		onUpdate(Update{Revision: newRev, Nodes: nodes})
	}
}
