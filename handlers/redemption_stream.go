package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mission-ledger/models"
	"mission-ledger/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	streamInterval     = 2 * time.Second
	streamQueryTimeout = 5 * time.Second
)

// streamRedemptions pushes new redemption receipts to the admin as
// server-sent events, so rewards can be delivered as they are bought.
func streamRedemptions(c *fiber.Ctx, l *services.Ledger) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	ctx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()
		pumpRedemptions(ctx, w, l, ticker.C)
	})
	return nil
}

// redemptionFeed remembers which receipts a stream has already sent.
// Concurrent redemptions can become visible out of created_at order, so the
// position is kept by receipt id rather than by index into the log.
type redemptionFeed struct {
	seen map[string]struct{}
}

func newRedemptionFeed(existing []models.Redemption) *redemptionFeed {
	f := &redemptionFeed{seen: make(map[string]struct{}, len(existing))}
	f.unseen(existing)
	return f
}

// unseen returns the receipts in list not sent before and marks them sent.
func (f *redemptionFeed) unseen(list []models.Redemption) []models.Redemption {
	var fresh []models.Redemption
	for _, r := range list {
		if _, ok := f.seen[r.ID]; ok {
			continue
		}
		f.seen[r.ID] = struct{}{}
		fresh = append(fresh, r)
	}
	return fresh
}

// pumpRedemptions writes receipts made after the stream opened, plus a
// keepalive comment on every tick. It returns when ctx is done or a flush
// fails because the client has gone away.
func pumpRedemptions(ctx context.Context, w *bufio.Writer, l *services.Ledger, tick <-chan time.Time) {
	var feed *redemptionFeed
	if existing, err := queryRedemptions(ctx, l); err != nil {
		l.Log.Warn("redemption stream init failed", zap.Error(err))
	} else {
		feed = newRedemptionFeed(existing)
	}

	// Initial keepalive (comment event)
	w.WriteString(":\n\n")
	if err := w.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-tick:
			list, err := queryRedemptions(ctx, l)
			switch {
			case err != nil:
				l.Log.Warn("redemption stream query failed", zap.Error(err))
			case feed == nil:
				// The log could not be read at open; start from here.
				feed = newRedemptionFeed(list)
			default:
				if err := writeRedemptionEvents(w, feed.unseen(list)); err != nil {
					return
				}
			}

			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func queryRedemptions(ctx context.Context, l *services.Ledger) ([]models.Redemption, error) {
	ctx, cancel := context.WithTimeout(ctx, streamQueryTimeout)
	defer cancel()
	return l.Rewards.ListRedemptions(ctx, 0)
}

func writeRedemptionEvents(w io.Writer, list []models.Redemption) error {
	for _, r := range list {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: redemption\nid: %s\ndata: %s\n\n", r.ID, payload); err != nil {
			return err
		}
	}
	return nil
}
