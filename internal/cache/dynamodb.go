package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/phrazzld/match-gateway/internal/config"
)

// Item attribute names. expires_at holds epoch seconds and should be
// configured as the table's TTL attribute; DynamoDB deletes lazily, so reads
// filter on it as well.
const (
	attrKey     = "pk"
	attrValue   = "val"
	attrMembers = "members"
	attrExpires = "expires_at"
)

const liveCondition = "(attribute_not_exists(#exp) OR #exp > :now)"

// DynamoDBStore is a Store on a single DynamoDB table keyed by pk (S).
type DynamoDBStore struct {
	api   dynamodbiface.DynamoDBAPI
	table string
	now   func() time.Time
}

var _ Store = (*DynamoDBStore)(nil)

// NewDynamoDBStore builds a client from cfg and checks the table exists.
func NewDynamoDBStore(ctx context.Context, cfg config.DynamoDBConfig) (*DynamoDBStore, error) {
	client, err := NewDynamoDBClient(cfg)
	if err != nil {
		return nil, err
	}
	store := NewDynamoDBStoreFromAPI(client, cfg.Table)
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// NewDynamoDBClient builds an SDK client for cfg. Credentials come from the
// SDK's default chain.
func NewDynamoDBClient(cfg config.DynamoDBConfig) (*dynamodb.DynamoDB, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithHTTPClient(&http.Client{Timeout: cfg.ConnectTimeout})
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dynamodb session: %v", ErrUnavailable, err)
	}
	return dynamodb.New(sess), nil
}

// NewDynamoDBStoreFromAPI wraps an existing client.
func NewDynamoDBStoreFromAPI(api dynamodbiface.DynamoDBAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{api: api, table: table, now: time.Now}
}

func dynamoErr(op string, err error) error {
	return fmt.Errorf("%w: dynamodb %s: %v", ErrUnavailable, op, err)
}

func isConditionFailure(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

func (s *DynamoDBStore) key(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{attrKey: {S: aws.String(key)}}
}

func epoch(t time.Time) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(t.Unix(), 10))}
}

func (s *DynamoDBStore) valueItem(key string, v Value, ttl time.Duration) map[string]*dynamodb.AttributeValue {
	item := map[string]*dynamodb.AttributeValue{
		attrKey:   {S: aws.String(key)},
		attrValue: {B: v.Encode()},
	}
	if exp := expiry(s.now(), ttl); !exp.IsZero() {
		item[attrExpires] = epoch(exp)
	}
	return item
}

// itemExpired reports whether item carries an expiry at or before now.
func itemExpired(item map[string]*dynamodb.AttributeValue, now time.Time) bool {
	attr, ok := item[attrExpires]
	if !ok || attr.N == nil {
		return false
	}
	secs, err := strconv.ParseInt(aws.StringValue(attr.N), 10, 64)
	if err != nil {
		return false
	}
	return secs <= now.Unix()
}

func (s *DynamoDBStore) getItem(ctx context.Context, key string) (map[string]*dynamodb.AttributeValue, error) {
	out, err := s.api.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dynamoErr("get", err)
	}
	if len(out.Item) == 0 || itemExpired(out.Item, s.now()) {
		return nil, nil
	}
	return out.Item, nil
}

// Get implements Store.
func (s *DynamoDBStore) Get(ctx context.Context, key string) (Value, bool, error) {
	item, err := s.getItem(ctx, key)
	if err != nil || item == nil {
		return Value{}, false, err
	}
	attr, ok := item[attrValue]
	if !ok || attr.B == nil {
		return Value{}, false, nil
	}
	v, err := DecodeValue(attr.B)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// Set implements Store.
func (s *DynamoDBStore) Set(ctx context.Context, key string, v Value, ttl time.Duration) error {
	_, err := s.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      s.valueItem(key, v, ttl),
	})
	if err != nil {
		return dynamoErr("put", err)
	}
	return nil
}

// SetIfAbsent implements Store.
func (s *DynamoDBStore) SetIfAbsent(ctx context.Context, key string, v Value, ttl time.Duration) (bool, error) {
	_, err := s.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     s.valueItem(key, v, ttl),
		ConditionExpression:      aws.String("attribute_not_exists(#pk) OR #exp <= :now"),
		ExpressionAttributeNames: map[string]*string{"#pk": aws.String(attrKey), "#exp": aws.String(attrExpires)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": epoch(s.now()),
		},
	})
	if isConditionFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, dynamoErr("put if absent", err)
	}
	return true, nil
}

// CompareAndSwap implements Store.
func (s *DynamoDBStore) CompareAndSwap(ctx context.Context, key string, old, next Value, ttl time.Duration) (bool, error) {
	_, err := s.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     s.valueItem(key, next, ttl),
		ConditionExpression:      aws.String("#val = :old AND " + liveCondition),
		ExpressionAttributeNames: map[string]*string{"#val": aws.String(attrValue), "#exp": aws.String(attrExpires)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":old": {B: old.Encode()},
			":now": epoch(s.now()),
		},
	})
	if isConditionFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, dynamoErr("compare and swap", err)
	}
	return true, nil
}

// Delete implements Store.
func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(key),
	})
	if err != nil {
		return dynamoErr("delete", err)
	}
	return nil
}

// SetAdd implements Store. A set whose TTL has passed but which DynamoDB has
// not yet reaped is deleted first so stale members are not revived.
func (s *DynamoDBStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	for attempt := 0; ; attempt++ {
		old, err := s.addMembers(ctx, key, ttl, members)
		if err == nil {
			return countNew(old, members), nil
		}
		if !isConditionFailure(err) || attempt > 0 {
			return 0, dynamoErr("set add", err)
		}
		if err := s.deleteExpired(ctx, key); err != nil {
			return 0, err
		}
	}
}

func (s *DynamoDBStore) addMembers(ctx context.Context, key string, ttl time.Duration, members []string) ([]string, error) {
	now := s.now()
	values := map[string]*dynamodb.AttributeValue{
		":m":   {SS: aws.StringSlice(members)},
		":now": epoch(now),
	}
	update := "ADD #members :m REMOVE #exp"
	if exp := expiry(now, ttl); !exp.IsZero() {
		update = "ADD #members :m SET #exp = :exp"
		values[":exp"] = epoch(exp)
	}
	out, err := s.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(key),
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String(liveCondition),
		ExpressionAttributeNames: map[string]*string{
			"#members": aws.String(attrMembers),
			"#exp":     aws.String(attrExpires),
		},
		ExpressionAttributeValues: values,
		ReturnValues:              aws.String(dynamodb.ReturnValueUpdatedOld),
	})
	if err != nil {
		return nil, err
	}
	return membersOf(out.Attributes), nil
}

func (s *DynamoDBStore) deleteExpired(ctx context.Context, key string) error {
	_, err := s.api.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.key(key),
		ConditionExpression:      aws.String("#exp <= :now"),
		ExpressionAttributeNames: map[string]*string{"#exp": aws.String(attrExpires)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": epoch(s.now()),
		},
	})
	if err != nil && !isConditionFailure(err) {
		return dynamoErr("delete expired", err)
	}
	return nil
}

// SetRemove implements Store.
func (s *DynamoDBStore) SetRemove(ctx context.Context, key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	out, err := s.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(key),
		UpdateExpression:    aws.String("DELETE #members :m"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND " + liveCondition),
		ExpressionAttributeNames: map[string]*string{
			"#pk":      aws.String(attrKey),
			"#members": aws.String(attrMembers),
			"#exp":     aws.String(attrExpires),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":m":   {SS: aws.StringSlice(members)},
			":now": epoch(s.now()),
		},
		ReturnValues: aws.String(dynamodb.ReturnValueUpdatedOld),
	})
	if isConditionFailure(err) {
		return 0, nil
	}
	if err != nil {
		return 0, dynamoErr("set remove", err)
	}
	return countPresent(membersOf(out.Attributes), members), nil
}

// SetMembers implements Store.
func (s *DynamoDBStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	item, err := s.getItem(ctx, key)
	if err != nil {
		return nil, err
	}
	members := membersOf(item)
	sort.Strings(members)
	return members, nil
}

// Ping implements Store.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return dynamoErr("describe table", err)
	}
	return nil
}

// Close implements Store. The SDK client holds no resources of its own.
func (s *DynamoDBStore) Close() error { return nil }

func membersOf(item map[string]*dynamodb.AttributeValue) []string {
	attr, ok := item[attrMembers]
	if !ok || attr == nil {
		return []string{}
	}
	return aws.StringValueSlice(attr.SS)
}

// countNew counts distinct members not already in old.
func countNew(old, members []string) int {
	seen := make(map[string]struct{}, len(old)+len(members))
	for _, m := range old {
		seen[m] = struct{}{}
	}
	n := 0
	for _, m := range members {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			n++
		}
	}
	return n
}

// countPresent counts distinct members found in old.
func countPresent(old, members []string) int {
	present := make(map[string]bool, len(old))
	for _, m := range old {
		present[m] = true
	}
	n := 0
	for _, m := range members {
		if present[m] {
			present[m] = false
			n++
		}
	}
	return n
}
