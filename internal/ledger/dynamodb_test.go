package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamoDB struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	puts     []*dynamodb.PutItemInput
	putError error
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamoDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putError != nil {
		return nil, f.putError
	}
	f.puts = append(f.puts, in)
	id := in.Item["id"].(*types.AttributeValueMemberS).Value
	if _, exists := f.items[id]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (f *fakeDynamoDB) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, requests := range in.RequestItems {
		for _, r := range requests {
			if r.DeleteRequest != nil {
				delete(f.items, r.DeleteRequest.Key["id"].(*types.AttributeValueMemberS).Value)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func newTestDynamoLedger(t *testing.T, client *fakeDynamoDB) *DynamoDBLedger {
	t.Helper()
	l, err := NewDynamoDBLedger(client, "certificates")
	require.NoError(t, err)

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l
}

func TestDynamoDBLedger_AppendAndReadAll(t *testing.T) {
	client := newFakeDynamoDB()
	l := newTestDynamoLedger(t, client)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, sampleRow("FIRST0001")))
	require.NoError(t, l.Append(ctx, sampleRow("SECOND002")))

	require.Len(t, client.puts, 2)
	assert.Equal(t, "attribute_not_exists(id)", *client.puts[0].ConditionExpression)
	assert.Equal(t, "certificates", *client.puts[0].TableName)

	table, err := l.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Columns, table.Header)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, sampleRow("FIRST0001").Values(), table.Rows[0])
	assert.Equal(t, "SECOND002", table.Rows[1][6])
}

func TestDynamoDBLedger_Replace(t *testing.T) {
	client := newFakeDynamoDB()
	l := newTestDynamoLedger(t, client)
	ctx := context.Background()

	for _, id := range []string{"OLD000001", "OLD000002", "OLD000003"} {
		require.NoError(t, l.Append(ctx, sampleRow(id)))
	}

	require.NoError(t, l.Replace(ctx, NewTable(sampleRow("NEW000001"), sampleRow("NEW000002"))))

	table, err := l.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "NEW000001", table.Rows[0][6])
	assert.Equal(t, "NEW000002", table.Rows[1][6])

	assert.ErrorIs(t, l.Replace(ctx, &Table{Header: []string{"x"}}), ErrSchemaMismatch)
}

func TestDynamoDBLedger_AppendError(t *testing.T) {
	client := newFakeDynamoDB()
	client.putError = errors.New("throttled")
	l := newTestDynamoLedger(t, client)

	err := l.Append(context.Background(), sampleRow("AAAAAAAAA"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewDynamoDBLedger_Validation(t *testing.T) {
	_, err := NewDynamoDBLedger(nil, "t")
	assert.Error(t, err)
	_, err = NewDynamoDBLedger(newFakeDynamoDB(), "")
	assert.Error(t, err)
}
