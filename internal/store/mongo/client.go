// Package mongostore implements the document-store repositories on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// AuthAWS selects IAM authentication against Atlas.
const AuthAWS = "MONGODB-AWS"

// ClientConfig holds the parameters needed to connect to MongoDB.
type ClientConfig struct {
	URI            string
	Server         string
	Database       string
	AuthMechanism  string
	AWSRegion      string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// Client wraps a connected *mongo.Client and the marketplace database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// New connects to MongoDB and verifies the connection with a ping. With
// MONGODB-AWS auth, credentials come from the default AWS provider chain.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	opts := options.Client().
		SetRegistry(NewRegistry()).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	if strings.EqualFold(cfg.AuthMechanism, AuthAWS) {
		cred, err := awsCredential(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		opts.ApplyURI(fmt.Sprintf("mongodb+srv://%s/?retryWrites=true&w=majority", cfg.Server)).SetAuth(cred)
	} else {
		opts.ApplyURI(cfg.URI)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger.With(slog.String("component", "mongostore")),
	}, nil
}

func awsCredential(ctx context.Context, region string) (options.Credential, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return options.Credential{}, fmt.Errorf("mongostore: load aws config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return options.Credential{}, fmt.Errorf("mongostore: retrieve aws credentials: %w", err)
	}

	cred := options.Credential{
		AuthMechanism: AuthAWS,
		AuthSource:    "$external",
		Username:      creds.AccessKeyID,
		Password:      creds.SecretAccessKey,
		PasswordSet:   true,
	}
	if creds.SessionToken != "" {
		cred.AuthMechanismProperties = map[string]string{"AWS_SESSION_TOKEN": creds.SessionToken}
	}
	return cred, nil
}

// Database returns the marketplace database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Collection returns a handle to the named collection.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Disconnect(ctx); err != nil {
		c.logger.Warn("disconnect failed", slog.String("error", err.Error()))
	}
}
