package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name     string
	sent     []string
	failWith error
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.sent = append(f.sent, title+"|"+message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersByEvent(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"closed", "unwound"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "closed", "t1", "m1"))
	require.NoError(t, n.Notify(context.Background(), "opened", "t2", "m2"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "t1|m1", sender.sent[0])
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, sender.sent, 1)
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	bad := &fakeSender{name: "bad", failWith: errors.New("webhook gone")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "closed", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The failing sender does not block the healthy one.
	assert.Len(t, good.sent, 1)
}

func TestFormatEvent(t *testing.T) {
	payload := []byte(`{
		"type": "closed",
		"position_id": "pos-1",
		"pool_id": "lag_arb:main",
		"strategy": "lag_arb",
		"instrument_id": "tok-yes",
		"state": "closed",
		"pnl": 1.5
	}`)

	event, title, message, ok := formatEvent(payload)
	require.True(t, ok)
	assert.Equal(t, "closed", event)
	assert.Equal(t, "Position closed", title)
	assert.Contains(t, message, "pool lag_arb:main")
	assert.Contains(t, message, "pnl +1.50 USDC")

	_, _, _, ok = formatEvent([]byte(`{"position_id":"x"}`))
	assert.False(t, ok)

	_, _, _, ok = formatEvent([]byte(`garbage`))
	assert.False(t, ok)
}
