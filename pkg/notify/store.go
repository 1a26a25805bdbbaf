package notify

import (
	"context"

	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/models"
)

// Store emits a notification after every successful checkout operation.
type Store struct {
	next     checkout.Store
	notifier *Notifier
}

func NewStore(next checkout.Store, notifier *Notifier) *Store {
	return &Store{next: next, notifier: notifier}
}

func (s *Store) CreateOrder(ctx context.Context, in checkout.OrderInput) (checkout.OrderResult, error) {
	res, err := s.next.CreateOrder(ctx, in)
	if err != nil {
		return res, err
	}
	s.notifier.OrderPlaced(OrderPlaced{
		OrderID:  res.ID,
		Email:    in.Email,
		CourseID: in.CourseID,
		Price:    in.Price,
	})
	return res, nil
}

func (s *Store) SubmitPaymentProof(ctx context.Context, in checkout.ProofInput) (checkout.ProofResult, error) {
	res, err := s.next.SubmitPaymentProof(ctx, in)
	if err != nil {
		return res, err
	}
	s.notifier.ProofSubmitted(ProofSubmitted{
		OrderID:  res.OrderID,
		TxnID:    in.TxnID,
		HasProof: res.ProofURL != nil,
	})
	return res, nil
}

func (s *Store) Order(ctx context.Context, id string) (*models.Order, error) {
	return s.next.Order(ctx, id)
}
