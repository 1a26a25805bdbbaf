package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/example/coursecheckout/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrFileNotFound is returned when a stored proof file does not exist.
var ErrFileNotFound = errors.New("file not found")

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.RemoteConfig
}

// NewMongoRepository connects and pings the remote database. A failed ping
// disconnects the client and returns the error.
func NewMongoRepository(ctx context.Context, cfg *config.RemoteConfig) (*MongoRepository, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password}).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return NewMongoRepositoryFromClient(client, cfg), nil
}

// NewMongoRepositoryFromClient wraps a client that is already connected.
func NewMongoRepositoryFromClient(client *mongo.Client, cfg *config.RemoteConfig) *MongoRepository {
	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}
}

func (m *MongoRepository) Database() *mongo.Database {
	return m.database
}

func (m *MongoRepository) Bucket() *GridFSBucket {
	return NewGridFSBucket(m.database, m.config.Bucket, m.config.PublicBaseURL)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// GridFSBucket stores uploaded files and resolves their public URLs, which
// are served back by the gateway under /files/.
type GridFSBucket struct {
	db            *mongo.Database
	name          string
	publicBaseURL string
}

func NewGridFSBucket(db *mongo.Database, name, publicBaseURL string) *GridFSBucket {
	return &GridFSBucket{
		db:            db,
		name:          name,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// bucket returns a fresh handle per call; gridfs deadlines are stored on the
// handle and must not be shared between requests.
func (b *GridFSBucket) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	bucket, err := gridfs.NewBucket(b.db, options.GridFSBucket().SetName(b.name))
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := bucket.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
		if err := bucket.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	return bucket, nil
}

// Upload stores r under name and returns its public download URL.
func (b *GridFSBucket) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	bucket, err := b.bucket(ctx)
	if err != nil {
		return "", err
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if _, err := bucket.UploadFromStream(name, r, opts); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return b.URL(name), nil
}

// Open returns the newest revision of name and its stored content type.
func (b *GridFSBucket) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	bucket, err := b.bucket(ctx)
	if err != nil {
		return nil, "", err
	}
	stream, err := bucket.OpenDownloadStreamByName(name)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, "", ErrFileNotFound
	}
	if err != nil {
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if f := stream.GetFile(); f != nil && f.Metadata != nil {
		if v, ok := f.Metadata.Lookup("contentType").StringValueOK(); ok && v != "" {
			contentType = v
		}
	}
	return stream, contentType, nil
}

func (b *GridFSBucket) URL(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.publicBaseURL + "/files/" + strings.Join(segments, "/")
}
