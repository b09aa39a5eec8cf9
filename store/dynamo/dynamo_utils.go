package dynamo

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/sketchrelay/store"
)

const maxBatchBackoff = time.Second

func newDynamoDBClient(ctx context.Context, devMode bool, endpoint string) (*dynamodb.Client, error) {
	if !devMode {
		// Task role credentials and the regional endpoint
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewFromConfig(cfg), nil
	}

	// DynamoDB Local accepts any static credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
	)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func tableExists(ctx context.Context, client *dynamodb.Client, tableName string) (bool, error) {
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list tables: %w", err)
		}
		if slices.Contains(page.TableNames, tableName) {
			return true, nil
		}
	}
	return false, nil
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// getItem reads one item by key. A missing item is store.ErrItemNotFound.
func getItem[T any](ctx context.Context, s *DynamoRelayStore, pk, sk string) (T, error) {
	var item T

	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return item, fmt.Errorf("get %s/%s: %w", pk, sk, err)
	}
	if resp.Item == nil {
		return item, store.ErrItemNotFound
	}

	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return item, fmt.Errorf("unmarshal %s/%s: %w", pk, sk, err)
	}
	return item, nil
}

// queryLatest returns up to limit items under pk, highest SK first.
func queryLatest[T any](ctx context.Context, s *DynamoRelayStore, pk string, limit int) ([]T, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})

	results := make([]T, 0, limit)
	for paginator.HasMorePages() && len(results) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", pk, err)
		}

		var items []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal %s page: %w", pk, err)
		}
		results = append(results, items...)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// putBatch writes up to 25 items, retrying throttled leftovers with
// exponential backoff until ctx ends. Whatever is still unwritten is
// returned decoded as T.
func putBatch[T any](ctx context.Context, s *DynamoRelayStore, items []T) ([]T, error) {
	pending := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return items, fmt.Errorf("marshal batch item: %w", err)
		}
		pending = append(pending, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	backoff := 50 * time.Millisecond
	for len(pending) > 0 {
		resp, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
		})
		if err != nil {
			return decodePuts[T](pending), fmt.Errorf("batch write: %w", err)
		}

		pending = resp.UnprocessedItems[s.tableName]
		if len(pending) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return decodePuts[T](pending), ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBatchBackoff)
	}
	return nil, nil
}

func decodePuts[T any](reqs []types.WriteRequest) []T {
	out := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		if wr.PutRequest == nil {
			continue
		}
		var item T
		if err := attributevalue.UnmarshalMap(wr.PutRequest.Item, &item); err == nil {
			out = append(out, item)
		}
	}
	return out
}

// upsertVersioned overwrites the named attributes of item and increments
// its Version in one UpdateItem call, returning the stored item.
func upsertVersioned[T any](ctx context.Context, s *DynamoRelayStore, item T, fields ...string) (T, error) {
	var stored T

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return stored, fmt.Errorf("marshal item: %w", err)
	}

	names := map[string]string{"#v": "Version"}
	values := map[string]types.AttributeValue{
		":zero": &types.AttributeValueMemberN{Value: "0"},
		":one":  &types.AttributeValueMemberN{Value: "1"},
	}
	sets := []string{"#v = if_not_exists(#v, :zero) + :one"}
	for i, field := range fields {
		val, ok := av[field]
		if !ok {
			continue
		}
		n := "#f" + strconv.Itoa(i)
		v := ":f" + strconv.Itoa(i)
		names[n] = field
		values[v] = val
		sets = append(sets, n+" = "+v)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       map[string]types.AttributeValue{"PK": av["PK"], "SK": av["SK"]},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return stored, fmt.Errorf("update item: %w", err)
	}

	if err := attributevalue.UnmarshalMap(out.Attributes, &stored); err != nil {
		return stored, fmt.Errorf("unmarshal updated item: %w", err)
	}
	return stored, nil
}

// addToCounter adds delta to a numeric attribute, creating the item if needed.
func addToCounter(ctx context.Context, s *DynamoRelayStore, pk, sk, field string, delta int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      itemKey(pk, sk),
		UpdateExpression:         aws.String("ADD #c :delta"),
		ExpressionAttributeNames: map[string]string{"#c": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
		},
	})
	if err != nil {
		return fmt.Errorf("add to %s on %s/%s: %w", field, pk, sk, err)
	}
	return nil
}
