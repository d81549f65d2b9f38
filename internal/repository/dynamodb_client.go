package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"adherence-agent/internal/domain"
)

const skContext = "CONTEXT"

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps one item per live session. The table's TTL attribute
// removes abandoned sessions; items past their TTL but not yet swept are
// treated as missing.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func (s *DynamoStore) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skContext},
	}
}

func (s *DynamoStore) Load(ctx context.Context, sessionID string) (domain.ConversationContext, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ConversationContext{}, false, nil
	}

	if expires, err := intAttr(out.Item, "ttl"); err == nil && int64(expires) <= s.now().Unix() {
		return domain.ConversationContext{}, false, nil
	}

	raw, err := strAttr(out.Item, "context")
	if err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: Load decode: %w", err)
	}
	var cc domain.ConversationContext
	if err := json.Unmarshal([]byte(raw), &cc); err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: Load unmarshal context: %w", err)
	}
	return cc, true, nil
}

func (s *DynamoStore) Save(ctx context.Context, cc domain.ConversationContext) error {
	if cc.SessionID == "" {
		return errors.New("repository: Save: session id is required")
	}
	item, err := s.contextItem(cc)
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(sessionID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func (s *DynamoStore) contextItem(cc domain.ConversationContext) (map[string]types.AttributeValue, error) {
	raw, err := json.Marshal(cc)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	now := s.now().UTC()
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(cc.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: skContext},
		"sessionId": &types.AttributeValueMemberS{Value: cc.SessionID},
		"state":     &types.AttributeValueMemberS{Value: string(cc.State)},
		"context":   &types.AttributeValueMemberS{Value: string(raw)},
		"updatedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(s.ttl).Unix())},
	}
	if cc.PatientID != "" {
		item["patientId"] = &types.AttributeValueMemberS{Value: cc.PatientID}
	}
	return item, nil
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
