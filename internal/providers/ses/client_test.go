package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignd/internal/dispatch"
	"campaignd/internal/domain"
)

type fakeAPI struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeAPI) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func message() domain.Message {
	return domain.Message{
		CampaignID:  "c1",
		RecipientID: "r1",
		TrackingID:  "trk_1",
		From:        domain.Sender{Name: "Shop", Address: "news@shop.example.com"},
		To:          "ada@example.com",
		Subject:     "Hello Ada",
		HTML:        "<p>hi</p>",
	}
}

func TestSendBuildsSimpleEmail(t *testing.T) {
	api := &fakeAPI{}
	c := &Client{API: api, ConfigurationSet: "campaigns"}

	id, err := c.Send(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, "ses-123", id)

	in := api.in
	require.NotNil(t, in)
	assert.Equal(t, "Shop <news@shop.example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ada@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hello Ada", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "<p>hi</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
	assert.Equal(t, "campaigns", aws.ToString(in.ConfigurationSetName))

	tags := map[string]string{}
	for _, tag := range in.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{"campaign_id": "c1", "recipient_id": "r1", "tracking_id": "trk_1"}, tags)
}

func TestTagValuesAreSanitized(t *testing.T) {
	api := &fakeAPI{}
	m := message()
	m.CampaignID = "spring sale/2026.v2"
	m.RecipientID = "ada@example.com"
	_, err := (&Client{API: api}).Send(context.Background(), m)
	require.NoError(t, err)

	tags := map[string]string{}
	for _, tag := range api.in.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, "spring_sale_2026_v2", tags["campaign_id"])
	assert.Equal(t, "ada_example_com", tags["recipient_id"])
	assert.Equal(t, "trk_1", tags["tracking_id"])
}

func TestTagValue(t *testing.T) {
	assert.Equal(t, "none", tagValue(""))
	assert.Equal(t, "c-1_A", tagValue("c-1_A"))
	assert.Equal(t, "caf__", tagValue("café"))
	assert.Len(t, tagValue(strings.Repeat("x", 300)), 256)
}

func TestSendWithoutSenderName(t *testing.T) {
	api := &fakeAPI{}
	m := message()
	m.From.Name = ""
	_, err := (&Client{API: api}).Send(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "news@shop.example.com", aws.ToString(api.in.FromEmailAddress))
	assert.Nil(t, api.in.ConfigurationSetName)
}

func TestThrottlingIsTransient(t *testing.T) {
	api := &fakeAPI{err: &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "slow down"}}
	_, err := (&Client{API: api}).Send(context.Background(), message())
	require.Error(t, err)
	assert.True(t, dispatch.IsTransient(err))
}

func TestRejectionIsPermanent(t *testing.T) {
	api := &fakeAPI{err: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified", Fault: smithy.FaultClient}}
	_, err := (&Client{API: api}).Send(context.Background(), message())
	require.Error(t, err)
	assert.False(t, dispatch.IsTransient(err))

	var ae smithy.APIError
	assert.True(t, errors.As(err, &ae))
}
