package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignd/internal/config"
	"campaignd/internal/providers/relay"
	"campaignd/internal/providers/smtp"
)

func TestNewTransportRelay(t *testing.T) {
	tr, err := NewTransport(context.Background(), config.DispatchConfig{
		Transport:    config.TransportRelay,
		RelayBaseURL: "http://localhost:8090",
		RelayAPIKey:  "k",
	})
	require.NoError(t, err)
	rc, ok := tr.(*relay.Client)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8090", rc.BaseURL)
}

func TestNewTransportSMTP(t *testing.T) {
	tr, err := NewTransport(context.Background(), config.DispatchConfig{
		Transport: config.TransportSMTP,
		SMTPHost:  "smtp.example.com",
		SMTPPort:  2525,
	})
	require.NoError(t, err)
	assert.IsType(t, &smtp.Client{}, tr)
}

func TestNewTransportUnknown(t *testing.T) {
	_, err := NewTransport(context.Background(), config.DispatchConfig{Transport: "fax"})
	assert.Error(t, err)
}
