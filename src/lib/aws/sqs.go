package aws

import (
	"context"
	"log"
	"olympia/src/lib"
	"olympia/src/types"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type SQSConsumer struct {
	Name    string
	handler types.Handler
}

func NewSQSConsumer(queue string, handler types.Handler) *SQSConsumer {
	return &SQSConsumer{
		Name:    queue,
		handler: handler,
	}
}

// Listen long-polls the queue until ctx is done. Messages are deleted
// after the handler returns.
func (s *SQSConsumer) Listen(ctx context.Context) {
	go func() {
		qname := s.Name
		client := lib.AWSGetSQSClient()
		if client == nil {
			return
		}
		qurl, err := lib.SQSGetQueueURL(ctx, client, qname)
		if err != nil {
			return
		}
		log.Printf("%s: Listening for messages...", qname)
		for ctx.Err() == nil {
			output, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            qurl,
				WaitTimeSeconds:     20,
				MaxNumberOfMessages: 10,
			})
			if err != nil {
				log.Printf("[SQS] Error receiving messages: %s\n", err.Error())
				return
			}
			for _, m := range output.Messages {
				s.handle(client, qurl, m)
			}
		}
	}()
}

func (s *SQSConsumer) handle(client *sqs.Client, qurl *string, m sqstypes.Message) {
	if m.Body == nil {
		return
	}
	s.handler(strings.Clone(*m.Body))
	lib.SQSDeleteMessage(client, qurl, &m)
}
