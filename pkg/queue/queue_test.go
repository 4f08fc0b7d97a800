package queue

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b2bgate/xmlgate/pkg/model"
)

func TestDecodeEnvelopeRoundTrips(t *testing.T) {
	raw := []byte(`<ASN><A>1</A></ASN>`)
	body := []byte(`{"file_bytes":"` + base64.StdEncoding.EncodeToString(raw) + `","file_name":"f.xml","client_id":1,"interface_id":2,"priority":"HIGH","enqueued_at":"2026-01-01T00:00:00Z"}`)

	env, err := decodeEnvelope(body)
	require.NoError(t, err)
	require.Equal(t, raw, env.FileBytes)
	require.Equal(t, "f.xml", env.FileName)
	require.Equal(t, int64(1), env.ClientID)
	require.Equal(t, int64(2), env.InterfaceID)
	require.Equal(t, model.PriorityHigh, env.Priority)
	require.True(t, env.EnqueuedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDecodeEnvelopeRejectsInvalidJSON(t *testing.T) {
	_, err := decodeEnvelope([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsInvalidBase64(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"file_bytes":"not-base64!!","file_name":"f.xml"}`))
	require.Error(t, err)
}

func TestDefaultConfigMatchesPriorityQueueNames(t *testing.T) {
	cfg := DefaultConfig()
	require.NotEmpty(t, cfg.QueueHigh)
	require.NotEmpty(t, cfg.QueueNormal)
	require.NotEmpty(t, cfg.QueueLow)
	require.Less(t, cfg.Concurrent, cfg.MaxConcurrent+1)
}
