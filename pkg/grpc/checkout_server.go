package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/config"
	"github.com/example/coursecheckout/pkg/repository"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName              = "checkout.v1.CheckoutService"
	createOrderMethod        = "/" + serviceName + "/CreateOrder"
	submitPaymentProofMethod = "/" + serviceName + "/SubmitPaymentProof"
	getOrderMethod           = "/" + serviceName + "/GetOrder"
	openProofMethod          = "/" + serviceName + "/OpenProof"

	// maxMessageSize bounds requests and responses carrying proof files.
	maxMessageSize = 32 << 20
)

// ProofFiles opens stored proof files by name.
type ProofFiles interface {
	OpenProof(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// checkoutService is the handler type of the service descriptor.
type checkoutService interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitPaymentProof(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenProof(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(checkoutService, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(checkoutService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(checkoutService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*checkoutService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(createOrderMethod, checkoutService.CreateOrder)},
		{MethodName: "SubmitPaymentProof", Handler: unaryHandler(submitPaymentProofMethod, checkoutService.SubmitPaymentProof)},
		{MethodName: "GetOrder", Handler: unaryHandler(getOrderMethod, checkoutService.GetOrder)},
		{MethodName: "OpenProof", Handler: unaryHandler(openProofMethod, checkoutService.OpenProof)},
	},
	Streams: []grpc.StreamDesc{},
}

type CheckoutServer struct {
	store  checkout.Store
	files  ProofFiles
	logger *zap.Logger
	config *config.Config
	srv    *grpc.Server
}

// NewCheckoutServer serves store. files may be nil, in which case every
// OpenProof call reports NotFound.
func NewCheckoutServer(cfg *config.Config, store checkout.Store, files ProofFiles, logger *zap.Logger) *CheckoutServer {
	return &CheckoutServer{
		store:  store,
		files:  files,
		logger: logger.Named("grpc"),
		config: cfg,
		srv:    grpc.NewServer(grpc.MaxRecvMsgSize(maxMessageSize)),
	}
}

// Register attaches the checkout service to r.
func (s *CheckoutServer) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

func (s *CheckoutServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.Register(s.srv)
	reflection.Register(s.srv)

	s.logger.Info("Checkout service started", zap.String("address", addr))

	return s.srv.Serve(lis)
}

func (s *CheckoutServer) Stop() {
	s.srv.GracefulStop()
}

func (s *CheckoutServer) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.store.CreateOrder(ctx, decodeOrderInput(req))
	if err != nil {
		s.logger.Error("Failed to create order", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to create order")
	}
	return structpb.NewStruct(map[string]any{"id": res.ID})
}

func (s *CheckoutServer) SubmitPaymentProof(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := decodeProofInput(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.store.SubmitPaymentProof(ctx, in)
	if err != nil {
		s.logger.Error("Failed to submit payment proof",
			zap.String("order_id", in.OrderID),
			zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to submit payment proof")
	}
	return encodeProofResult(res)
}

func (s *CheckoutServer) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	order, err := s.store.Order(ctx, id)
	if errors.Is(err, checkout.ErrOrderNotFound) {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	if err != nil {
		s.logger.Error("Failed to get order", zap.String("order_id", id), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to get order")
	}
	return encodeOrder(order)
}

func (s *CheckoutServer) OpenProof(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()["name"].GetStringValue()
	if s.files == nil || name == "" {
		return nil, status.Error(codes.NotFound, "file not found")
	}

	r, contentType, err := s.files.OpenProof(ctx, name)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, status.Error(codes.NotFound, "file not found")
	}
	if err != nil {
		s.logger.Error("Failed to open proof file", zap.String("name", name), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to open proof file")
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.Error("Failed to read proof file", zap.String("name", name), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to read proof file")
	}
	return structpb.NewStruct(map[string]any{
		"contentType": contentType,
		"data":        data,
	})
}
