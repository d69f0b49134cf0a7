package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"campaignd/internal/domain"
)

type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type Client struct {
	API              API
	ConfigurationSet string
}

func (c *Client) Send(ctx context.Context, msg domain.Message) (string, error) {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromHeader(msg.From)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(tagValue(msg.CampaignID))},
			{Name: aws.String("recipient_id"), Value: aws.String(tagValue(msg.RecipientID))},
			{Name: aws.String("tracking_id"), Value: aws.String(tagValue(msg.TrackingID))},
		},
	}
	if c.ConfigurationSet != "" {
		in.ConfigurationSetName = aws.String(c.ConfigurationSet)
	}

	out, err := c.API.SendEmail(ctx, in)
	if err != nil {
		return "", classify(err)
	}
	return aws.ToString(out.MessageId), nil
}

const maxTagValue = 256

// tagValue maps v onto the characters SES accepts in a message tag
// ([A-Za-z0-9_-], at most 256). Anything else becomes '_'; an empty value
// becomes "none".
func tagValue(v string) string {
	if v == "" {
		return "none"
	}
	b := []byte(v)
	if len(b) > maxTagValue {
		b = b[:maxTagValue]
	}
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

func fromHeader(s domain.Sender) string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// ThrottledError marks SES throttling and server faults so the circuit
// breaker counts them.
type ThrottledError struct{ Err error }

func (e *ThrottledError) Error() string   { return "ses: " + e.Err.Error() }
func (e *ThrottledError) Unwrap() error   { return e.Err }
func (e *ThrottledError) Temporary() bool { return true }

func classify(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch {
		case ae.ErrorCode() == "TooManyRequestsException", ae.ErrorCode() == "LimitExceededException",
			ae.ErrorFault() == smithy.FaultServer:
			return &ThrottledError{Err: err}
		}
	}
	return fmt.Errorf("ses: %w", err)
}
