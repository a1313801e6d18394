package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"avia-bot/internal/domain"
)

const skState = "STATE#"

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore wraps a DynamoDB table for dialog state. Items carry a "ttl"
// attribute for table-level expiry; expired items are also ignored on read
// because DynamoDB deletes them lazily.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a new DynamoStore.
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttlOrDefault(ttl), now: time.Now}, nil
}

func stateKey(userID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userKey(userID)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// GetState reads the user's dialog state with a consistent read.
func (d *DynamoStore) GetState(ctx context.Context, userID int64) (domain.DialogState, bool, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            stateKey(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.DialogState{}, false, fmt.Errorf("repository: GetState get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.DialogState{}, false, nil
	}

	expires, err := intAttr(out.Item, "ttl")
	if err != nil {
		return domain.DialogState{}, false, fmt.Errorf("repository: GetState decode ttl: %w", err)
	}
	if expires <= d.now().Unix() {
		return domain.DialogState{}, false, nil
	}
	raw, err := strAttr(out.Item, "state")
	if err != nil {
		return domain.DialogState{}, false, fmt.Errorf("repository: GetState: %w", err)
	}
	s, err := decodeState([]byte(raw))
	if err != nil {
		return domain.DialogState{}, false, fmt.Errorf("repository: GetState: %w", err)
	}
	return s, true, nil
}

// SaveState writes or replaces the user's dialog state.
func (d *DynamoStore) SaveState(ctx context.Context, s domain.DialogState) error {
	buf, err := encodeState(s)
	if err != nil {
		return err
	}
	item := stateKey(s.UserID)
	item["state"] = &types.AttributeValueMemberS{Value: string(buf)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: s.UpdatedAt.UTC().Format(time.RFC3339)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Add(d.ttl).Unix(), 10)}

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SaveState: %w", err)
	}
	return nil
}

// DeleteState removes the user's dialog state; deleting a missing item is not an error.
func (d *DynamoStore) DeleteState(ctx context.Context, userID int64) error {
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       stateKey(userID),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteState: %w", err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
