package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const dynamoBatchSize = 25

// DynamoDBAPI is the subset of the DynamoDB client used by the ledger
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// dynamoItem is a row keyed by a random id. LoggedAt orders the table.
type dynamoItem struct {
	ID       string `dynamodbav:"id"`
	LoggedAt string `dynamodbav:"logged_at"`
	Row
}

// DynamoDBLedger stores one item per row. PutItem with a not-exists
// condition never overwrites an earlier row.
type DynamoDBLedger struct {
	client DynamoDBAPI
	table  string
	now    func() time.Time
}

// NewDynamoDBLedger creates a ledger over an existing table whose partition key is "id"
func NewDynamoDBLedger(client DynamoDBAPI, table string) (*DynamoDBLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamodb table is required")
	}
	return &DynamoDBLedger{
		client: client,
		table:  table,
		now:    time.Now,
	}, nil
}

// Append puts one item
func (l *DynamoDBLedger) Append(ctx context.Context, row Row) error {
	return l.put(ctx, row, l.now())
}

func (l *DynamoDBLedger) put(ctx context.Context, row Row, at time.Time) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		ID:       uuid.New().String(),
		LoggedAt: at.UTC().Format(time.RFC3339Nano),
		Row:      row,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ledger item: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put ledger item: %w", err)
	}
	return nil
}

// ReadAll scans the table and orders rows by the time they were logged
func (l *DynamoDBLedger) ReadAll(ctx context.Context) (*Table, error) {
	items, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LoggedAt < items[j].LoggedAt
	})

	t := NewTable()
	for _, item := range items {
		t.Rows = append(t.Rows, item.Row.Values())
	}
	return t, nil
}

// Replace deletes every item and writes table. DynamoDB has no multi-batch
// transaction for this, so a failure midway leaves a partial table.
func (l *DynamoDBLedger) Replace(ctx context.Context, table *Table) error {
	if err := table.Validate(); err != nil {
		return err
	}

	items, err := l.scan(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(items); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(items))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"id": &types.AttributeValueMemberS{Value: item.ID},
					},
				},
			})
		}
		if err := l.batchWrite(ctx, requests); err != nil {
			return err
		}
	}

	// Sequential timestamps keep the uploaded order
	base := l.now()
	for i, values := range table.Rows {
		row, err := RowFromValues(values)
		if err != nil {
			return err
		}
		if err := l.put(ctx, row, base.Add(time.Duration(i)*time.Microsecond)); err != nil {
			return err
		}
	}
	return nil
}

func (l *DynamoDBLedger) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{l.table: requests}
	for attempt := 0; len(pending[l.table]) > 0; attempt++ {
		if attempt == 5 {
			return fmt.Errorf("failed to delete ledger items: %d unprocessed", len(pending[l.table]))
		}
		out, err := l.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to delete ledger items: %w", err)
		}
		pending = out.UnprocessedItems
		if pending == nil {
			return nil
		}
	}
	return nil
}

func (l *DynamoDBLedger) scan(ctx context.Context) ([]dynamoItem, error) {
	var items []dynamoItem
	paginator := dynamodb.NewScanPaginator(l.client, &dynamodb.ScanInput{
		TableName: aws.String(l.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger table: %w", err)
		}
		var batch []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger items: %w", err)
		}
		items = append(items, batch...)
	}
	return items, nil
}
