package models

import "time"

type PaymentProof struct {
	OrderID     string      `bson:"orderId" json:"orderId"`
	TxnID       *string     `bson:"txnId" json:"txnId"`
	ProofURL    *string     `bson:"proofUrl" json:"proofUrl"`
	Status      OrderStatus `bson:"status" json:"status"`
	SubmittedAt time.Time   `bson:"submittedAt" json:"submittedAt"`
}
