// workers/event_consumer.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mission-ledger/models"
	"mission-ledger/services"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectEvents = "ledger.events"
	SubjectRedeem = "ledger.redeem"
	queueGroup    = "mission-ledger"
)

// RedeemRequest is the body of a ledger.redeem request.
type RedeemRequest struct {
	ExternalUserID int64 `json:"external_user_id"`
	RewardID       uint  `json:"reward_id"`
}

// Reply wraps every response sent back over NATS. Exactly one of Outcome,
// Redemption or Error is set.
type Reply struct {
	Outcome    *services.Outcome          `json:"outcome,omitempty"`
	Redemption *services.RedemptionResult `json:"redemption,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Kind       services.ErrorKind         `json:"kind,omitempty"`
}

// EventConsumer serves mission events and redemption requests from the bot
// over NATS request/reply. Subscriptions share a queue group so several
// ledger processes can consume the same subjects.
type EventConsumer struct {
	ledger  *services.Ledger
	log     *zap.Logger
	timeout time.Duration

	subs []*nats.Subscription
}

func NewEventConsumer(l *services.Ledger, log *zap.Logger) *EventConsumer {
	return &EventConsumer{ledger: l, log: log, timeout: 10 * time.Second}
}

// Start subscribes on conn. Call Stop to drain the subscriptions.
func (w *EventConsumer) Start(conn *nats.Conn) error {
	for subject, handle := range map[string]func(context.Context, []byte) Reply{
		SubjectEvents: w.HandleEvent,
		SubjectRedeem: w.HandleRedeem,
	} {
		handle := handle
		sub, err := conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			defer cancel()
			w.respond(msg, handle(ctx, msg.Data))
		})
		if err != nil {
			w.Stop()
			return fmt.Errorf("subscribe to %s: %w", subject, err)
		}
		w.subs = append(w.subs, sub)
	}
	w.log.Info("event consumer subscribed", zap.Strings("subjects", []string{SubjectEvents, SubjectRedeem}))
	return nil
}

func (w *EventConsumer) Stop() {
	for _, sub := range w.subs {
		if err := sub.Drain(); err != nil {
			w.log.Warn("drain subscription", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	w.subs = nil
}

func (w *EventConsumer) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("encode reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		w.log.Warn("respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// HandleEvent decodes and dispatches one mission event.
func (w *EventConsumer) HandleEvent(ctx context.Context, data []byte) Reply {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Reply{Error: "invalid event payload", Kind: services.KindInvalidArgument}
	}
	out, err := w.ledger.Dispatcher.Dispatch(ctx, ev)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Outcome: out}
}

// HandleRedeem decodes and runs one redemption.
func (w *EventConsumer) HandleRedeem(ctx context.Context, data []byte) Reply {
	var req RedeemRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Reply{Error: "invalid redeem payload", Kind: services.KindInvalidArgument}
	}
	if req.ExternalUserID == 0 || req.RewardID == 0 {
		return Reply{Error: "external_user_id and reward_id are required", Kind: services.KindInvalidArgument}
	}
	res, err := w.ledger.Rewards.Redeem(ctx, req.ExternalUserID, req.RewardID)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Redemption: res}
}

func errorReply(err error) Reply {
	kind := services.Kind(err)
	msg := err.Error()
	if kind == services.KindStoreUnavailable {
		msg = "ledger temporarily unavailable, retry later"
	}
	return Reply{Error: msg, Kind: kind}
}
