package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/zlnvch/sketchrelay/models"
)

// Hard cap on a single history read regardless of what the caller asks for.
const maxHistory = 200

type DynamoRelayStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoRelayStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoRelayStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	ok, err := tableExists(ctx, client, tableName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("table %q not found in dynamodb", tableName)
	}

	return &DynamoRelayStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoRelayStore) WriteChatBatch(ctx context.Context, messages []models.ChatMessage) ([]models.ChatMessage, error) {
	items := make([]dynamoChat, 0, len(messages))
	for _, msg := range messages {
		items = append(items, chatToDynamo(msg))
	}

	unprocessed, err := putBatch(ctx, dynamoStore, items)
	failed := make([]models.ChatMessage, 0, len(unprocessed))
	for _, u := range unprocessed {
		failed = append(failed, chatFromDynamo(u))
	}

	return failed, err
}

func (dynamoStore *DynamoRelayStore) GetChatHistory(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	// Newest first, then reversed so callers get chronological order
	items, err := queryLatest[dynamoChat](ctx, dynamoStore, chatPrefix+roomId, limit)
	if err != nil {
		return []models.ChatMessage{}, err
	}

	messages := make([]models.ChatMessage, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		messages = append(messages, chatFromDynamo(items[i]))
	}

	return messages, nil
}

func (dynamoStore *DynamoRelayStore) SaveCanvas(ctx context.Context, snapshot models.CanvasSnapshot) (int, error) {
	if snapshot.UpdatedAt == 0 {
		snapshot.UpdatedAt = time.Now().UnixMilli()
	}
	dc, err := upsertVersioned(ctx, dynamoStore, canvasToDynamo(snapshot), "Elements", "AppState", "UpdatedBy", "UpdatedAt")
	if err != nil {
		return 0, err
	}
	return dc.Version, nil
}

func (dynamoStore *DynamoRelayStore) GetCanvas(ctx context.Context, roomId string) (models.CanvasSnapshot, error) {
	dc, err := getItem[dynamoCanvas](ctx, dynamoStore, roomPrefix+roomId, canvasSK)
	if err != nil {
		return models.CanvasSnapshot{}, err
	}
	return canvasFromDynamo(dc), nil
}

func (dynamoStore *DynamoRelayStore) IncrementRoomMessageCount(ctx context.Context, roomId string, count int) error {
	// Stats rows are created on first increment
	return addToCounter(ctx, dynamoStore, roomPrefix+roomId, statsSK, "MessageCount", count)
}
