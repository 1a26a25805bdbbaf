// Package notify tells reviewers about new orders and submitted payment
// proofs. Delivery runs on an actor mailbox so callers never wait on it.
package notify

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// ReviewWindow is the turnaround promised to buyers after a proof is sent.
const ReviewWindow = 24 * time.Hour

// Messages
type OrderPlaced struct {
	OrderID  string
	Email    string
	CourseID string
	Price    float64
}

type ProofSubmitted struct {
	OrderID  string
	TxnID    string
	HasProof bool
}

// reviewActor handles reviewer notifications
type reviewActor struct {
	logger *zap.Logger
}

func (a *reviewActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *OrderPlaced:
		a.logger.Info("Order awaiting payment",
			zap.String("order_id", msg.OrderID),
			zap.String("email", msg.Email),
			zap.String("course_id", msg.CourseID),
			zap.Float64("price", msg.Price))

	case *ProofSubmitted:
		a.logger.Info("Payment proof awaiting review",
			zap.String("order_id", msg.OrderID),
			zap.String("txn_id", msg.TxnID),
			zap.Bool("has_proof", msg.HasProof),
			zap.Duration("review_within", ReviewWindow))

	case *actor.Started:
		a.logger.Debug("Review actor started")

	case *actor.Stopped:
		a.logger.Debug("Review actor stopped")
	}
}

type Notifier struct {
	system *actor.ActorSystem
	pid    *actor.PID
}

func NewNotifier(logger *zap.Logger) (*Notifier, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &reviewActor{logger: logger.Named("review-actor")}
	})
	pid, err := system.Root.SpawnNamed(props, "review-actor")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn review actor: %w", err)
	}

	return &Notifier{system: system, pid: pid}, nil
}

func (n *Notifier) OrderPlaced(e OrderPlaced) {
	n.system.Root.Send(n.pid, &e)
}

func (n *Notifier) ProofSubmitted(e ProofSubmitted) {
	n.system.Root.Send(n.pid, &e)
}

// Close delivers queued notifications and stops the actor.
func (n *Notifier) Close() error {
	return n.system.Root.PoisonFuture(n.pid).Wait()
}
