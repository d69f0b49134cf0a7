package sqsqueue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Producer struct {
	SQS      API
	QueueURL string
}

// CampaignJob is the queued form of a dispatch trigger.
type CampaignJob struct {
	CampaignID  string    `json:"campaignId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (p *Producer) EnqueueCampaign(ctx context.Context, campaignID string, requestedAt time.Time) error {
	body, err := json.Marshal(CampaignJob{CampaignID: campaignID, RequestedAt: requestedAt})
	if err != nil {
		return err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.QueueURL),
		MessageBody: aws.String(string(body)),
	}
	if strings.HasSuffix(p.QueueURL, ".fifo") {
		// one group per campaign; repeated triggers inside the dedup window collapse
		in.MessageGroupId = aws.String(campaignID)
		in.MessageDeduplicationId = aws.String(campaignID)
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}
