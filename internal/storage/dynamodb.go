package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dialcraft/wfm-backend/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) SaveStatusRecord(record types.AgentStatusRecord) error {
	return s.putItem(s.config.StatusTable, record, "status record")
}

func (s *DynamoDBStore) FindActiveStatusRecord(agentID string) (*types.AgentStatusRecord, error) {
	items, err := s.queryActive(s.config.StatusTable, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active status record: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var record types.AgentStatusRecord
	if err := attributevalue.UnmarshalMap(items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status record: %w", err)
	}
	return &record, nil
}

func (s *DynamoDBStore) ListStatusRecords(agentID, dateKey string) ([]types.AgentStatusRecord, error) {
	keyCond := expression.Key("AgentID").Equal(expression.Value(agentID))
	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if dateKey != "" {
		builder = builder.WithFilter(expression.Name("DateKey").Equal(expression.Value(dateKey)))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.StatusTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if dateKey != "" {
		input.FilterExpression = expr.Filter()
	}

	result, err := s.client.Query(context.Background(), input)
	if err != nil {
		return nil, fmt.Errorf("failed to query status records: %w", err)
	}

	var records []types.AgentStatusRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status records: %w", err)
	}
	return records, nil
}

func (s *DynamoDBStore) SavePauseRecord(record types.PauseRecord) error {
	return s.putItem(s.config.PauseTable, record, "pause record")
}

func (s *DynamoDBStore) FindActivePauseRecord(agentID string) (*types.PauseRecord, error) {
	items, err := s.queryActive(s.config.PauseTable, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active pause record: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var record types.PauseRecord
	if err := attributevalue.UnmarshalMap(items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pause record: %w", err)
	}
	return &record, nil
}

func (s *DynamoDBStore) FindPauseRecord(agentID, pauseID string) (*types.PauseRecord, error) {
	key, err := attributevalue.MarshalMap(map[string]string{
		"AgentID": agentID,
		"PauseID": pauseID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pause key: %w", err)
	}

	result, err := s.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(s.config.PauseTable),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pause record: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var record types.PauseRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pause record: %w", err)
	}
	return &record, nil
}

func (s *DynamoDBStore) SaveWorkSession(record types.WorkSessionRecord) error {
	return s.putItem(s.config.SessionTable, record, "work session")
}

func (s *DynamoDBStore) FindActiveWorkSession(agentID string) (*types.WorkSessionRecord, error) {
	items, err := s.queryActive(s.config.SessionTable, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active work session: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var record types.WorkSessionRecord
	if err := attributevalue.UnmarshalMap(items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work session: %w", err)
	}
	return &record, nil
}

// ListActiveWorkSessions scans for all sessions with IsActive=true. For
// production scale a GSI on IsActive would be more efficient.
func (s *DynamoDBStore) ListActiveWorkSessions() ([]types.WorkSessionRecord, error) {
	filter := expression.Name("IsActive").Equal(expression.Value(true))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var sessions []types.WorkSessionRecord
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(s.config.SessionTable),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work sessions: %w", err)
		}

		var page []types.WorkSessionRecord
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal work sessions: %w", err)
		}
		sessions = append(sessions, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return sessions, nil
}

func (s *DynamoDBStore) putItem(table string, record any, kind string) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

// queryActive queries a table's agent partition filtered to IsActive=true
func (s *DynamoDBStore) queryActive(table, agentID string) ([]map[string]dbtypes.AttributeValue, error) {
	keyCond := expression.Key("AgentID").Equal(expression.Value(agentID))
	filter := expression.Name("IsActive").Equal(expression.Value(true))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(context.Background(), &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
