package checkout

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/example/coursecheckout/pkg/config"
	"github.com/example/coursecheckout/pkg/models"
	"github.com/example/coursecheckout/pkg/repository"
	"go.uber.org/zap"
)

// Provider opens the backend on first use and keeps that choice for the
// rest of the process. It implements Store by delegation.
type Provider struct {
	config *config.Config
	logger *zap.Logger

	connectRemote func(ctx context.Context, cfg *config.RemoteConfig) (*repository.MongoRepository, error)
	openLocal     func(ctx context.Context, cfg *config.Config) (repository.KeyValue, error)

	once   sync.Once
	store  Store
	mode   Mode
	err    error
	files  *repository.GridFSBucket
	closer func(ctx context.Context) error
}

func NewProvider(cfg *config.Config, logger *zap.Logger) *Provider {
	return &Provider{
		config:        cfg,
		logger:        logger.Named("checkout"),
		connectRemote: repository.NewMongoRepository,
		openLocal:     repository.OpenKeyValue,
	}
}

func (p *Provider) init(ctx context.Context) {
	p.once.Do(func() {
		// Selection must not depend on the first caller's cancellation.
		ctx := context.WithoutCancel(ctx)

		if p.config.Remote.Complete() {
			mongoRepo, err := p.connectRemote(ctx, &p.config.Remote)
			if err == nil {
				p.files = mongoRepo.Bucket()
				p.store = NewRemoteStore(mongoRepo.Database(), p.files, p.logger)
				p.mode = ModeRemote
				p.closer = mongoRepo.Close
				p.logger.Info("Using remote backend",
					zap.String("database", p.config.Remote.Database),
					zap.String("bucket", p.config.Remote.Bucket))
				return
			}
			p.logger.Warn("Remote backend unavailable, using local store", zap.Error(err))
		} else {
			p.logger.Info("Remote credentials incomplete, using local store")
		}

		kv, err := p.openLocal(ctx, p.config)
		if err != nil {
			p.err = fmt.Errorf("failed to open local store: %w", err)
			return
		}
		p.store = NewLocalStore(kv, p.logger)
		p.mode = ModeLocal
		p.closer = func(context.Context) error { return kv.Close() }
		p.logger.Info("Using local backend", zap.String("driver", p.config.Local.Driver))
	})
}

// Mode reports the selected backend, initialising it if needed. It is empty
// when initialisation failed.
func (p *Provider) Mode(ctx context.Context) Mode {
	p.init(ctx)
	return p.mode
}

func (p *Provider) get(ctx context.Context) (Store, error) {
	p.init(ctx)
	return p.store, p.err
}

func (p *Provider) CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	s, err := p.get(ctx)
	if err != nil {
		return OrderResult{}, err
	}
	return s.CreateOrder(ctx, in)
}

func (p *Provider) SubmitPaymentProof(ctx context.Context, in ProofInput) (ProofResult, error) {
	s, err := p.get(ctx)
	if err != nil {
		return ProofResult{}, err
	}
	return s.SubmitPaymentProof(ctx, in)
}

func (p *Provider) Order(ctx context.Context, id string) (*models.Order, error) {
	s, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Order(ctx, id)
}

// Close releases the backend if one was opened.
func (p *Provider) Close(ctx context.Context) error {
	if p.closer == nil {
		return nil
	}
	return p.closer(ctx)
}

// OpenProof streams a proof file from the remote bucket. In local mode proofs
// are inline data URLs and nothing can be opened.
func (p *Provider) OpenProof(ctx context.Context, name string) (io.ReadCloser, string, error) {
	p.init(ctx)
	if p.files == nil {
		return nil, "", repository.ErrFileNotFound
	}
	return p.files.Open(ctx, name)
}
