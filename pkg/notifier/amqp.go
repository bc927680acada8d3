package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/pkg/config"
	"github.com/impactdao/treasury-engine/pkg/governance"
)

const (
	kindProposalCreated       = "proposal.created"
	kindVoteCast              = "vote.cast"
	kindProposalStatusChanged = "proposal.status_changed"
)

// envelope is the wire shape of every notification message.
type envelope struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type proposalPayload struct {
	ProposalID int64  `json:"proposal_id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Proposer   string `json:"proposer"`
	Status     string `json:"status"`
	FromStatus string `json:"from_status,omitempty"`
}

type votePayload struct {
	ProposalID int64  `json:"proposal_id"`
	Voter      string `json:"voter"`
	Choice     string `json:"choice"`
	Power      string `json:"power"`
}

// AMQPNotifier publishes notifications to a fanout exchange.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	retries  uint
	logger   *zap.Logger
}

// NewAMQP connects to the broker and declares the notification exchange.
func NewAMQP(cfg *config.QueueConfig, logger *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(cfg.NotifyExchange, "fanout", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.NotifyExchange, err)
	}

	return &AMQPNotifier{
		conn:     conn,
		channel:  channel,
		exchange: cfg.NotifyExchange,
		retries:  uint(cfg.MaxRetries),
		logger:   logger,
	}, nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		return err
	}
	return n.conn.Close()
}

func (n *AMQPNotifier) publish(ctx context.Context, kind string, payload any) {
	env := envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		n.logger.Error("failed to encode notification", zap.String("kind", kind), zap.Error(err))
		return
	}

	err = retry.Do(
		func() error {
			return n.channel.PublishWithContext(ctx, n.exchange, "", false, false, amqp.Publishing{
				ContentType: "application/json",
				MessageId:   env.ID,
				Timestamp:   env.OccurredAt,
				Body:        body,
			})
		},
		retry.Context(ctx),
		retry.Attempts(n.retries),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		// Notifications are best-effort; the mutation already committed.
		n.logger.Error("failed to publish notification",
			zap.String("kind", kind),
			zap.String("message_id", env.ID),
			zap.Error(err))
	}
}

func (n *AMQPNotifier) ProposalCreated(ctx context.Context, p *governance.Proposal) {
	n.publish(ctx, kindProposalCreated, proposalPayload{
		ProposalID: p.ID,
		Title:      p.Title,
		Category:   p.Category.String(),
		Proposer:   p.Proposer.Hex(),
		Status:     p.Status.String(),
	})
}

func (n *AMQPNotifier) VoteCast(ctx context.Context, p *governance.Proposal, v *governance.Vote) {
	n.publish(ctx, kindVoteCast, votePayload{
		ProposalID: p.ID,
		Voter:      v.Voter.Hex(),
		Choice:     v.Choice.String(),
		Power:      v.Power.String(),
	})
}

func (n *AMQPNotifier) ProposalStatusChanged(ctx context.Context, p *governance.Proposal, from governance.ProposalStatus) {
	n.publish(ctx, kindProposalStatusChanged, proposalPayload{
		ProposalID: p.ID,
		Title:      p.Title,
		Category:   p.Category.String(),
		Proposer:   p.Proposer.Hex(),
		Status:     p.Status.String(),
		FromStatus: from.String(),
	})
}

var _ Notifier = (*AMQPNotifier)(nil)
