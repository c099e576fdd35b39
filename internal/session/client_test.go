package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

func TestClientShells(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	shells, err := client.AvailableShells(ctx)
	require.NoError(t, err)
	require.Len(t, shells, 1)
	assert.Equal(t, shell.KindSh, shells[0].Kind)

	optimal, err := client.OptimalShell(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", optimal.Path)
}

func TestClientSessions(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	created, err := client.CreateSession(ctx, types.CreateRequest{
		SessionID:  "sess-a",
		WorkingDir: "/tmp",
		Env:        map[string]string{"TERM": "xterm-256color"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-a", created.ID)
	assert.True(t, created.Active)

	_, err = client.CreateSession(ctx, types.CreateRequest{SessionID: "sess-a"})
	assert.True(t, errors.Is(err, errs.ErrDuplicateSession))

	got, err := client.GetSession(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp", got.WorkingDir)

	list, err := client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	history, err := client.History(ctx, "sess-a")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, client.KillSession(ctx, "sess-a"))
	_, err = client.GetSession(ctx, "sess-a")
	assert.True(t, errors.Is(err, errs.ErrSessionNotFound))
	assert.True(t, errors.Is(client.WriteToSession(ctx, "sess-a", []byte("x")), errs.ErrSessionNotFound))
}

func TestClientStateObservation(t *testing.T) {
	client, _ := newClient(t)
	require.Eventually(t, func() bool {
		return client.Transport().Observed() == transport.StateConnected
	}, time.Second, time.Millisecond)

	states := make(chan transport.ConnectionState, 4)
	sub := client.OnStateChange(func(s transport.ConnectionState) { states <- s })
	defer sub.Unsubscribe()

	select {
	case s := <-states:
		assert.Equal(t, transport.StateConnected, s)
	case <-time.After(time.Second):
		t.Fatal("no initial state")
	}
	assert.Equal(t, transport.StateConnected, client.State())
}
