package checkout

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/example/coursecheckout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

type fakeBucket struct {
	names []string
	data  []byte
	err   error
}

func (b *fakeBucket) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.names = append(b.names, name)
	b.data = data
	return "https://pay.example.com/files/" + name, nil
}

func newTestRemoteStore(mt *mtest.T, bucket ProofBucket) *RemoteStore {
	return NewRemoteStore(mt.DB, bucket, zap.NewNop())
}

func okResponse(n int) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func commandError() bson.D {
	return mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 8000, Message: "boom", Name: "AtlasError"})
}

func updatedCollection(mt *mtest.T) string {
	evt := mt.GetStartedEvent()
	require.NotNil(mt, evt)
	require.Equal(mt, "update", evt.CommandName)
	return evt.Command.Lookup("update").StringValue()
}

func TestRemoteStore_CreateOrder(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts into orders", func(mt *mtest.T) {
		mt.AddMockResponses(okResponse(1))
		s := newTestRemoteStore(mt, &fakeBucket{})

		res, err := s.CreateOrder(context.Background(), janeDoe())
		require.NoError(mt, err)
		assert.Regexp(mt, objectIDPattern, res.ID)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, ordersCollection, evt.Command.Lookup("update").StringValue())

		stmt := evt.Command.Lookup("updates", "0")
		assert.True(mt, stmt.Document().Lookup("upsert").Boolean())
		u := stmt.Document().Lookup("u").Document()
		assert.Equal(mt, "pending", u.Lookup("$setOnInsert", "status").StringValue())
		assert.True(mt, u.Lookup("$currentDate", "createdAt").Boolean())
	})

	mt.Run("propagates write errors", func(mt *mtest.T) {
		mt.AddMockResponses(commandError())
		s := newTestRemoteStore(mt, &fakeBucket{})

		_, err := s.CreateOrder(context.Background(), janeDoe())
		assert.Error(mt, err)
	})
}

func TestRemoteStore_SubmitPaymentProof(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	orderID := primitive.NewObjectID().Hex()

	mt.Run("without file updates order", func(mt *mtest.T) {
		mt.AddMockResponses(okResponse(1), okResponse(1))
		s := newTestRemoteStore(mt, &fakeBucket{})

		res, err := s.SubmitPaymentProof(context.Background(), ProofInput{OrderID: orderID, TxnID: "TXN123"})
		require.NoError(mt, err)
		assert.Equal(mt, orderID, res.OrderID)
		assert.Nil(mt, res.ProofURL)

		assert.Equal(mt, proofsCollection, updatedCollection(mt))
		assert.Equal(mt, ordersCollection, updatedCollection(mt))
	})

	mt.Run("with file uploads first", func(mt *mtest.T) {
		mt.AddMockResponses(okResponse(1), okResponse(1))
		bucket := &fakeBucket{}
		s := newTestRemoteStore(mt, bucket)
		s.now = func() time.Time { return time.UnixMilli(1700000000000) }

		res, err := s.SubmitPaymentProof(context.Background(), ProofInput{
			OrderID: orderID,
			File:    &File{Filename: "receipt.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png"))},
		})
		require.NoError(mt, err)
		require.Len(mt, bucket.names, 1)
		assert.Equal(mt, "payment_proofs/"+orderID+"-1700000000000-receipt.png", bucket.names[0])
		assert.Equal(mt, "png", string(bucket.data))
		require.NotNil(mt, res.ProofURL)
		assert.True(mt, strings.HasSuffix(*res.ProofURL, bucket.names[0]))
	})

	mt.Run("missing order is ignored", func(mt *mtest.T) {
		mt.AddMockResponses(okResponse(1), okResponse(0))
		s := newTestRemoteStore(mt, &fakeBucket{})

		res, err := s.SubmitPaymentProof(context.Background(), ProofInput{OrderID: orderID})
		require.NoError(mt, err)
		assert.Equal(mt, orderID, res.OrderID)
	})

	mt.Run("status update failure is ignored", func(mt *mtest.T) {
		mt.AddMockResponses(okResponse(1), commandError())
		s := newTestRemoteStore(mt, &fakeBucket{})

		_, err := s.SubmitPaymentProof(context.Background(), ProofInput{OrderID: orderID, TxnID: "T"})
		assert.NoError(mt, err)
	})

	mt.Run("non object id skips status update", func(mt *mtest.T) {
		mt.AddMockResponses(okResponse(1))
		s := newTestRemoteStore(mt, &fakeBucket{})

		_, err := s.SubmitPaymentProof(context.Background(), ProofInput{OrderID: "abc123", TxnID: "T"})
		require.NoError(mt, err)
		assert.Equal(mt, proofsCollection, updatedCollection(mt))
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("proof insert failure propagates", func(mt *mtest.T) {
		mt.AddMockResponses(commandError())
		s := newTestRemoteStore(mt, &fakeBucket{})

		_, err := s.SubmitPaymentProof(context.Background(), ProofInput{OrderID: orderID})
		assert.Error(mt, err)
	})

	mt.Run("upload failure propagates", func(mt *mtest.T) {
		s := newTestRemoteStore(mt, &fakeBucket{err: assert.AnError})

		_, err := s.SubmitPaymentProof(context.Background(), ProofInput{
			OrderID: orderID,
			File:    &File{Filename: "a.png", Body: bytes.NewReader(nil)},
		})
		assert.ErrorIs(mt, err, assert.AnError)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestRemoteStore_Order(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	oid := primitive.NewObjectID()

	mt.Run("found", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + ordersCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: oid},
			{Key: "name", Value: "Jane Doe"},
			{Key: "courseId", Value: "top-100-ai-tools"},
			{Key: "price", Value: 499.0},
			{Key: "status", Value: "payment_submitted"},
		}))
		s := newTestRemoteStore(mt, &fakeBucket{})

		order, err := s.Order(context.Background(), oid.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, oid.Hex(), order.ID)
		assert.Equal(mt, "Jane Doe", order.Name)
		assert.Equal(mt, models.OrderPaymentSubmitted, order.Status)
	})

	mt.Run("not found", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + ordersCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		s := newTestRemoteStore(mt, &fakeBucket{})

		_, err := s.Order(context.Background(), oid.Hex())
		assert.ErrorIs(mt, err, ErrOrderNotFound)
	})

	mt.Run("invalid id", func(mt *mtest.T) {
		s := newTestRemoteStore(mt, &fakeBucket{})

		_, err := s.Order(context.Background(), "abc123")
		assert.ErrorIs(mt, err, ErrOrderNotFound)
	})
}
