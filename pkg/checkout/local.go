package checkout

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/example/coursecheckout/pkg/models"
	"github.com/example/coursecheckout/pkg/repository"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

func orderKey(id string) string {
	return "orders:" + id
}

func proofKey(orderID string, at time.Time) string {
	return fmt.Sprintf("payment_proofs:%s:%d", orderID, at.UnixMilli())
}

// LocalStore keeps orders and proofs as JSON under namespaced keys of a
// key-value store. Proof files are inlined as data URLs.
type LocalStore struct {
	kv     repository.KeyValue
	logger *zap.Logger
	now    func() time.Time
}

func NewLocalStore(kv repository.KeyValue, logger *zap.Logger) *LocalStore {
	return &LocalStore{kv: kv, logger: logger, now: time.Now}
}

func (s *LocalStore) CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	id, err := newLocalID()
	if err != nil {
		return OrderResult{}, fmt.Errorf("failed to generate order id: %w", err)
	}

	order := newOrder(in)
	order.ID = id
	order.CreatedAt = s.now().UTC()

	data, err := json.Marshal(order)
	if err != nil {
		return OrderResult{}, err
	}
	if err := s.kv.Set(ctx, orderKey(id), data); err != nil {
		return OrderResult{}, fmt.Errorf("failed to save order: %w", err)
	}
	return OrderResult{ID: id}, nil
}

func (s *LocalStore) SubmitPaymentProof(ctx context.Context, in ProofInput) (ProofResult, error) {
	now := s.now().UTC()
	proof := models.PaymentProof{
		OrderID:     in.OrderID,
		TxnID:       optional(in.TxnID),
		Status:      models.OrderPaymentSubmitted,
		SubmittedAt: now,
	}

	if in.File != nil {
		dataURL, err := encodeDataURL(in.File)
		if err != nil {
			return ProofResult{}, fmt.Errorf("failed to read proof file: %w", err)
		}
		proof.ProofURL = &dataURL
	}

	data, err := json.Marshal(proof)
	if err != nil {
		return ProofResult{}, err
	}
	if err := s.kv.Set(ctx, proofKey(in.OrderID, now), data); err != nil {
		return ProofResult{}, fmt.Errorf("failed to save payment proof: %w", err)
	}

	if err := s.markSubmitted(ctx, in.OrderID, now); err != nil {
		s.logger.Debug("Order status not updated",
			zap.String("order_id", in.OrderID),
			zap.Error(err))
	}

	return ProofResult{OrderID: in.OrderID, ProofURL: proof.ProofURL}, nil
}

// markSubmitted is best effort; callers ignore its error.
func (s *LocalStore) markSubmitted(ctx context.Context, orderID string, at time.Time) error {
	data, err := s.kv.Get(ctx, orderKey(orderID))
	if err != nil {
		return err
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return err
	}
	order.Status = models.OrderPaymentSubmitted
	order.PaymentSubmittedAt = &at

	data, err = json.Marshal(order)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, orderKey(orderID), data)
}

func (s *LocalStore) Order(ctx context.Context, id string) (*models.Order, error) {
	data, err := s.kv.Get(ctx, orderKey(id))
	if errors.Is(err, repository.ErrKeyNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("corrupt order %s: %w", id, err)
	}
	return &order, nil
}

// encodeDataURL inlines the file as data:<mime>;base64,<payload>. The
// declared content type wins; otherwise it is sniffed from the bytes.
func encodeDataURL(f *File) (string, error) {
	raw, err := io.ReadAll(f.Body)
	if err != nil {
		return "", err
	}
	contentType := f.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(raw).String()
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
