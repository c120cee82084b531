package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	snssvc "github.com/aws/aws-sdk-go-v2/service/sns"
)

// maxSubjectLen is the SNS limit on email subjects.
const maxSubjectLen = 100

// snsAPIClient is the narrow SNS interface used by SNSPublisher.
type snsAPIClient interface {
	Publish(ctx context.Context, params *snssvc.PublishInput, optFns ...func(*snssvc.Options)) (*snssvc.PublishOutput, error)
}

// SNSPublisher publishes messages to a single SNS topic.
type SNSPublisher struct {
	client   snsAPIClient
	topicARN string
}

func NewSNSPublisher(client snsAPIClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = p.client.Publish(ctx, &snssvc.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(sanitizeSubject(msg.Subject)),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topicARN, err)
	}
	return nil
}

// sanitizeSubject strips line breaks and truncates to the SNS limit on a
// rune boundary.
func sanitizeSubject(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
	if runes := []rune(s); len(runes) > maxSubjectLen {
		s = string(runes[:maxSubjectLen])
	}
	return s
}
