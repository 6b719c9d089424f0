package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Backend names accepted by New
const (
	BackendCSV      = "csv"
	BackendXLSX     = "xlsx"
	BackendSheets   = "sheets"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend
type Options struct {
	Backend  string
	Path     string
	Sheets   SheetsOptions
	DynamoDB DynamoDBOptions
	Postgres PostgresOptions
}

// DynamoDBOptions configures the DynamoDB backend
type DynamoDBOptions struct {
	Table    string
	Region   string
	Endpoint string
}

// PostgresOptions configures the PostgreSQL backend
type PostgresOptions struct {
	DSN   string
	Table string
}

// New builds the ledger named by opts.Backend
func New(ctx context.Context, opts Options) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendCSV, "":
		return NewCSVLedger(opts.Path)
	case BackendXLSX:
		return NewXLSXLedger(opts.Path)
	case BackendSheets:
		return NewSheetsLedger(ctx, opts.Sheets)
	case BackendDynamoDB:
		client, err := newDynamoDBClient(ctx, opts.DynamoDB)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBLedger(client, opts.DynamoDB.Table)
	case BackendPostgres:
		return NewPostgresLedger(opts.Postgres.DSN, opts.Postgres.Table)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}

func newDynamoDBClient(ctx context.Context, opts DynamoDBOptions) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}
