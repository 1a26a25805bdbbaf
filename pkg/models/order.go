package models

import (
	"time"
)

type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderPaymentSubmitted OrderStatus = "payment_submitted"
)

// Order is a pre-purchase record. Course fields are a snapshot of the
// catalog entry at the time the order was placed.
type Order struct {
	ID          string      `bson:"-" json:"id"`
	Name        string      `bson:"name" json:"name"`
	Email       string      `bson:"email" json:"email"`
	Phone       string      `bson:"phone" json:"phone"`
	CourseID    string      `bson:"courseId" json:"courseId"`
	CourseTitle string      `bson:"courseTitle" json:"courseTitle"`
	Price       float64     `bson:"price" json:"price"`
	Status      OrderStatus `bson:"status" json:"status"`
	CreatedAt   time.Time   `bson:"createdAt" json:"createdAt"`

	// Only the local backend stamps this.
	PaymentSubmittedAt *time.Time `bson:"paymentSubmittedAt,omitempty" json:"paymentSubmittedAt,omitempty"`
}
