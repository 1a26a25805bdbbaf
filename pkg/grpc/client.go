package grpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/discovery"
	"github.com/example/coursecheckout/pkg/models"
	"github.com/example/coursecheckout/pkg/repository"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote checkout service and implements checkout.Store.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects lazily to target. Extra options are appended after the
// insecure transport credentials.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMessageSize)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// ResolveTarget looks serviceName up in etcd and falls back to target when
// discovery is unavailable or has no instance.
func ResolveTarget(disc *discovery.ServiceDiscovery, serviceName, target string, logger *zap.Logger) string {
	if disc == nil || serviceName == "" {
		return target
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	instances, err := disc.Discover(ctx, serviceName)
	if err == nil && len(instances) > 0 {
		logger.Info("Discovered checkout service", zap.String("address", instances[0].Addr))
		return instances[0].Addr
	}
	logger.Info("Using default address for checkout service", zap.String("address", target))
	return target
}

func (c *Client) CreateOrder(ctx context.Context, in checkout.OrderInput) (checkout.OrderResult, error) {
	req, err := encodeOrderInput(in)
	if err != nil {
		return checkout.OrderResult{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, createOrderMethod, req, out); err != nil {
		return checkout.OrderResult{}, err
	}
	return checkout.OrderResult{ID: out.GetFields()["id"].GetStringValue()}, nil
}

func (c *Client) SubmitPaymentProof(ctx context.Context, in checkout.ProofInput) (checkout.ProofResult, error) {
	req, err := encodeProofInput(in)
	if err != nil {
		return checkout.ProofResult{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, submitPaymentProofMethod, req, out); err != nil {
		return checkout.ProofResult{}, err
	}
	return decodeProofResult(out), nil
}

func (c *Client) Order(ctx context.Context, id string) (*models.Order, error) {
	req, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, getOrderMethod, req, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, err
	}
	return decodeOrder(out)
}

// OpenProof downloads a stored proof file through the checkout service.
func (c *Client) OpenProof(ctx context.Context, name string) (io.ReadCloser, string, error) {
	req, err := structpb.NewStruct(map[string]any{"name": name})
	if err != nil {
		return nil, "", err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, openProofMethod, req, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, "", repository.ErrFileNotFound
		}
		return nil, "", err
	}

	f := out.GetFields()
	data, err := base64.StdEncoding.DecodeString(f["data"].GetStringValue())
	if err != nil {
		return nil, "", fmt.Errorf("invalid file data: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), f["contentType"].GetStringValue(), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
