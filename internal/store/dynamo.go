package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	appconfig "sentimentflow/config"
	"sentimentflow/logger"
)

// DynamoStore implements Store on a DynamoDB table keyed by pk/sk. The
// table is expected to have TTL enabled on the expires_at attribute.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	log    *logger.Log
}

// NewDynamoStore configures the AWS SDK the same way the rest of the
// application does and returns a ready client.
func NewDynamoStore(ctx context.Context, cfg appconfig.DynamoDBConfig) (*DynamoStore, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	s := &DynamoStore{
		client: dynamodb.NewFromConfig(awsCfg, clientOpts...),
		table:  cfg.Table,
		log:    log,
	}

	log.WithComponent("dynamo_store").WithFields(logger.Fields{
		"region": cfg.Region,
		"table":  cfg.Table,
	}).Debug("dynamodb store initialized")

	return s, nil
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoStore) key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		FieldPK: &types.AttributeValueMemberS{Value: pk},
		FieldSK: &types.AttributeValueMemberS{Value: sk},
	}
}

func marshalValue(v interface{}) (types.AttributeValue, error) {
	switch val := v.(type) {
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(val, 'g', -1, 64)}, nil
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case []string:
		if len(val) == 0 {
			return nil, fmt.Errorf("empty string set")
		}
		return &types.AttributeValueMemberSS{Value: val}, nil
	}
	return attributevalue.Marshal(v)
}

func unmarshalItem(raw map[string]types.AttributeValue) (Item, error) {
	it := make(Item, len(raw))
	for k, av := range raw {
		switch v := av.(type) {
		case *types.AttributeValueMemberN:
			f, err := strconv.ParseFloat(v.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			it[k] = f
		case *types.AttributeValueMemberS:
			it[k] = v.Value
		case *types.AttributeValueMemberSS:
			it[k] = append([]string(nil), v.Value...)
		default:
			var out interface{}
			if err := attributevalue.Unmarshal(av, &out); err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			it[k] = out
		}
	}
	return it, nil
}

func (s *DynamoStore) GetItem(ctx context.Context, pk, sk string) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalItem(out.Item)
}

func (s *DynamoStore) ConditionalPut(ctx context.Context, pk, sk string, fields Item, cond Condition) error {
	item := make(map[string]types.AttributeValue, len(fields)+2)
	for k, v := range fields {
		av, err := marshalValue(v)
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", k, err)
		}
		item[k] = av
	}
	item[FieldPK] = &types.AttributeValueMemberS{Value: pk}
	item[FieldSK] = &types.AttributeValueMemberS{Value: sk}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if cond == ConditionNotExists {
		input.ConditionExpression = aws.String("attribute_not_exists(pk)")
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("conditional put: %w", err)
	}
	return nil
}

func (s *DynamoStore) ConditionalFieldSet(ctx context.Context, pk, sk, field string, value float64, cond Condition) error {
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.key(pk, sk),
		UpdateExpression: aws.String("SET #f = :v"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatFloat(value, 'g', -1, 64)},
		},
	}
	switch cond {
	case ConditionNotExists:
		input.ConditionExpression = aws.String("attribute_not_exists(#f)")
	case ConditionGreaterThanCurrent:
		input.ConditionExpression = aws.String("#f < :v")
	case ConditionLessThanCurrent:
		input.ConditionExpression = aws.String("#f > :v")
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("conditional field set: %w", err)
	}
	return nil
}

func (s *DynamoStore) AtomicIncrement(ctx context.Context, pk, sk, field string, delta float64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.key(pk, sk),
		UpdateExpression: aws.String("ADD #f :d"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberN{Value: strconv.FormatFloat(delta, 'g', -1, 64)},
		},
	})
	if err != nil {
		return fmt.Errorf("atomic increment: %w", err)
	}
	return nil
}

func (s *DynamoStore) AddToSet(ctx context.Context, pk, sk, field string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.key(pk, sk),
		UpdateExpression: aws.String("ADD #f :m"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberSS{Value: members},
		},
	})
	if err != nil {
		return fmt.Errorf("add to set: %w", err)
	}
	return nil
}

func (s *DynamoStore) RangeQuery(ctx context.Context, pk string, rng KeyRange, limit int, exclusiveStartKey string) (Page, error) {
	keyCond := "pk = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	switch {
	case rng.Start != "" && rng.End != "":
		// BETWEEN is inclusive on both sides; the exclusive upper bound
		// is enforced below.
		keyCond += " AND sk BETWEEN :start AND :end"
		values[":start"] = &types.AttributeValueMemberS{Value: rng.Start}
		values[":end"] = &types.AttributeValueMemberS{Value: rng.End}
	case rng.Start != "":
		keyCond += " AND sk >= :start"
		values[":start"] = &types.AttributeValueMemberS{Value: rng.Start}
	case rng.End != "":
		keyCond += " AND sk < :end"
		values[":end"] = &types.AttributeValueMemberS{Value: rng.End}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	if exclusiveStartKey != "" {
		input.ExclusiveStartKey = s.key(pk, exclusiveStartKey)
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("range query: %w", err)
	}

	page := Page{}
	for _, raw := range out.Items {
		it, err := unmarshalItem(raw)
		if err != nil {
			return Page{}, err
		}
		if rng.End != "" && it.String(FieldSK) >= rng.End {
			continue
		}
		page.Items = append(page.Items, it)
	}
	if out.LastEvaluatedKey != nil {
		if sk, ok := out.LastEvaluatedKey[FieldSK].(*types.AttributeValueMemberS); ok {
			page.LastEvaluatedKey = sk.Value
		}
	}
	return page, nil
}
