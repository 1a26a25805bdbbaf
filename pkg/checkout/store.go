// Package checkout records course orders and the payment proofs submitted
// for them. A Provider picks one of two interchangeable backends on first
// use: the remote document database with object storage when every remote
// credential is configured, otherwise the local key-value store.
package checkout

import (
	"context"
	"errors"
	"io"

	"github.com/example/coursecheckout/pkg/models"
)

// ErrOrderNotFound is returned by Store.Order for an unknown id.
var ErrOrderNotFound = errors.New("order not found")

type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// OrderInput carries contact fields and the course snapshot. The store does
// not validate any of them.
type OrderInput struct {
	Name        string
	Email       string
	Phone       string
	CourseID    string
	CourseTitle string
	Price       float64
}

type OrderResult struct {
	ID string `json:"id"`
}

// File is an uploaded payment screenshot.
type File struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type ProofInput struct {
	OrderID string
	TxnID   string
	File    *File
}

type ProofResult struct {
	OrderID  string  `json:"orderId"`
	ProofURL *string `json:"proofUrl"`
}

type Store interface {
	CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error)
	// SubmitPaymentProof stores a proof and then tries to mark the order as
	// payment_submitted. Errors from that second step are ignored; a proof
	// for an unknown order still succeeds.
	SubmitPaymentProof(ctx context.Context, in ProofInput) (ProofResult, error)
	Order(ctx context.Context, id string) (*models.Order, error)
}

func newOrder(in OrderInput) models.Order {
	return models.Order{
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		CourseID:    in.CourseID,
		CourseTitle: in.CourseTitle,
		Price:       in.Price,
		Status:      models.OrderPending,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
