package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/ciutil"
	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

// Backend contract tests run only when a server is provided:
//
//	GATEWAY_TEST_REDIS_ADDR=localhost:6379
//	GATEWAY_TEST_DATABASE_URL=postgres://...   (or DATABASE_URL)
//	GATEWAY_TEST_DYNAMODB_ENDPOINT=http://localhost:8000

func testPrefix() string {
	return fmt.Sprintf("test:%d:", time.Now().UnixNano())
}

func TestRedisStoreContract(t *testing.T) {
	addr := ciutil.RequireEnv(t, ciutil.EnvTestRedisAddr)

	s, err := NewRedisStore(context.Background(), config.RedisConfig{Addr: addr, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreContract(t, s, testPrefix())
}

func TestPostgresStoreContract(t *testing.T) {
	url := ciutil.RequireDatabaseURL(t)

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, config.PostgresConfig{URL: url, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, Migrate(ctx, s.DB(), MigrateUp, logger.Discard()))

	runStoreContract(t, s, testPrefix())

	_, err = s.Purge(ctx)
	require.NoError(t, err)
}

func TestDynamoDBStoreContract(t *testing.T) {
	endpoint := ciutil.RequireEnv(t, ciutil.EnvTestDynamoDBEndpoint)
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	ctx := context.Background()
	cfg := config.DynamoDBConfig{
		Table:          fmt.Sprintf("gateway-cache-%d", time.Now().UnixNano()),
		Region:         "us-east-1",
		Endpoint:       endpoint,
		ConnectTimeout: 5 * time.Second,
	}

	client, err := NewDynamoDBClient(cfg)
	require.NoError(t, err)
	_, err = client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(cfg.Table),
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(attrKey), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(attrKey), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = client.DeleteTable(&dynamodb.DeleteTableInput{TableName: aws.String(cfg.Table)})
	})

	s, err := NewDynamoDBStore(ctx, cfg)
	require.NoError(t, err)

	runStoreContract(t, s, "")
}
