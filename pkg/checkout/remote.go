package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/example/coursecheckout/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	ordersCollection = "orders"
	proofsCollection = "payment_proofs"
)

// ProofBucket is the object storage for proof files.
type ProofBucket interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// RemoteStore writes to the orders and payment_proofs collections. Document
// ids are ObjectIDs and timestamps come from the database server clock.
type RemoteStore struct {
	orders *mongo.Collection
	proofs *mongo.Collection
	bucket ProofBucket
	logger *zap.Logger
	now    func() time.Time
}

func NewRemoteStore(db *mongo.Database, bucket ProofBucket, logger *zap.Logger) *RemoteStore {
	return &RemoteStore{
		orders: db.Collection(ordersCollection),
		proofs: db.Collection(proofsCollection),
		bucket: bucket,
		logger: logger,
		now:    time.Now,
	}
}

type orderDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	models.Order `bson:",inline"`
}

// insert creates a document with the given id through an upsert, so that
// stampField is set by $currentDate on the server.
func insert(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, fields bson.M, stampField string) error {
	update := bson.M{
		"$setOnInsert": fields,
		"$currentDate": bson.M{stampField: true},
	}
	_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	return err
}

func (s *RemoteStore) CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	order := newOrder(in)
	id := primitive.NewObjectID()

	fields := bson.M{
		"name":        order.Name,
		"email":       order.Email,
		"phone":       order.Phone,
		"courseId":    order.CourseID,
		"courseTitle": order.CourseTitle,
		"price":       order.Price,
		"status":      order.Status,
	}
	if err := insert(ctx, s.orders, id, fields, "createdAt"); err != nil {
		return OrderResult{}, fmt.Errorf("failed to insert order: %w", err)
	}
	return OrderResult{ID: id.Hex()}, nil
}

func (s *RemoteStore) SubmitPaymentProof(ctx context.Context, in ProofInput) (ProofResult, error) {
	var proofURL *string

	if in.File != nil {
		name := fmt.Sprintf("payment_proofs/%s-%d-%s", in.OrderID, s.now().UnixMilli(), in.File.Filename)
		url, err := s.bucket.Upload(ctx, name, in.File.ContentType, in.File.Body)
		if err != nil {
			return ProofResult{}, err
		}
		proofURL = &url
	}

	fields := bson.M{
		"orderId":  in.OrderID,
		"txnId":    optional(in.TxnID),
		"proofUrl": proofURL,
		"status":   models.OrderPaymentSubmitted,
	}
	if err := insert(ctx, s.proofs, primitive.NewObjectID(), fields, "submittedAt"); err != nil {
		return ProofResult{}, fmt.Errorf("failed to insert payment proof: %w", err)
	}

	if err := s.markSubmitted(ctx, in.OrderID); err != nil {
		s.logger.Debug("Order status not updated",
			zap.String("order_id", in.OrderID),
			zap.Error(err))
	}

	return ProofResult{OrderID: in.OrderID, ProofURL: proofURL}, nil
}

// markSubmitted is best effort; callers ignore its error.
func (s *RemoteStore) markSubmitted(ctx context.Context, orderID string) error {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return err
	}
	res, err := s.orders.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"status": models.OrderPaymentSubmitted}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *RemoteStore) Order(ctx context.Context, id string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	var doc orderDocument
	err = s.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order := doc.Order
	order.ID = doc.ID.Hex()
	return &order, nil
}
