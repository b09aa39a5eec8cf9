package sqsmq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/zlnvch/sketchrelay/mq"
)

const (
	// SQS rejects delays above 15 minutes
	maxDelaySeconds = 900
	longPollSeconds = 20
)

type SQSMessageQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("queue %q not found in sqs: %w", queueName, err)
	}

	return &SQSMessageQueue{client: client, queueURL: aws.ToString(out.QueueUrl)}, nil
}

func newSQSClient(ctx context.Context, devMode bool, endpoint string) (*sqs.Client, error) {
	if !devMode {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return sqs.NewFromConfig(cfg), nil
	}

	// Local emulators accept any static credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
	)
	if err != nil {
		return nil, err
	}

	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (q *SQSMessageQueue) Send(ctx context.Context, body string, delaySeconds int32) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: min(max(delaySeconds, 0), maxDelaySeconds),
	})
	return err
}

// Receive long-polls for a single message. It returns nil, nil when the
// poll ends empty.
func (q *SQSMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     longPollSeconds,
		VisibilityTimeout:   visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}

	return toMessage(resp.Messages[0]), nil
}

func (q *SQSMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.Id),
	})
	return err
}

func toMessage(m types.Message) *mq.Message {
	count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	return &mq.Message{
		Id:           aws.ToString(m.ReceiptHandle),
		Body:         aws.ToString(m.Body),
		ReceiveCount: count,
	}
}
