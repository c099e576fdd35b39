package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/session"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/testutil"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

func newClient(t *testing.T) (*session.Client, *testutil.FakeExecutor) {
	t.Helper()
	exec := testutil.NewFakeExecutor()

	opts := transport.DefaultOptions()
	opts.Debounce = 5 * time.Millisecond
	tr := transport.New(transport.NewLoopback(exec, transport.ServeOptions{}), opts)
	t.Cleanup(func() { tr.Close() })
	tr.Connect()

	require.Eventually(t, func() bool {
		return tr.State() == transport.StateConnected && exec.Subscribers() == 1
	}, 2*time.Second, time.Millisecond)
	return session.NewClient(tr, session.ClientOptions{CallTimeout: 2 * time.Second}), exec
}

func TestOwnedTerminalTerminatesOnceOnClose(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()

	term, err := session.Open(ctx, client, session.Options{Cols: 100, Rows: 30})
	require.NoError(t, err)
	sessionID := term.SessionID()

	assert.True(t, term.Owned())
	assert.Contains(t, sessionID, "sess_")
	info, ok := exec.Session(sessionID)
	require.True(t, ok)
	assert.Equal(t, 100, info.Cols)
	assert.Equal(t, 1, client.Transport().Listeners(sessionID))

	require.NoError(t, term.Close(ctx))
	require.NoError(t, term.Close(ctx))

	assert.Equal(t, 1, exec.CountCalls(terminal.TargetKill, sessionID))
	_, ok = exec.Session(sessionID)
	assert.False(t, ok)
	assert.Equal(t, 0, client.Transport().Listeners(sessionID))
}

func TestAttachedTerminalNeverTerminates(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()

	info, err := client.CreateSession(ctx, types.CreateRequest{SessionID: "shared-1"})
	require.NoError(t, err)

	term := session.Attach(client, info.ID)
	assert.False(t, term.Owned())
	assert.Equal(t, 1, client.Transport().Listeners("shared-1"))

	require.NoError(t, term.Close(ctx))

	assert.Equal(t, 0, exec.CountCalls(terminal.TargetKill, "shared-1"))
	_, ok := exec.Session("shared-1")
	assert.True(t, ok)
	assert.Equal(t, 0, client.Transport().Listeners("shared-1"))
}

func TestCloseSkipsTerminateAfterExitOrKill(t *testing.T) {
	tests := []struct {
		name     string
		finish   func(t *testing.T, term *session.Terminal, exec *testutil.FakeExecutor)
		wantKill int
	}{
		{
			name: "exited",
			finish: func(t *testing.T, term *session.Terminal, exec *testutil.FakeExecutor) {
				exec.ExitSession(term.SessionID(), 0)
				require.Eventually(t, term.Exited, time.Second, time.Millisecond)
			},
			wantKill: 0,
		},
		{
			name: "killed",
			finish: func(t *testing.T, term *session.Terminal, exec *testutil.FakeExecutor) {
				require.NoError(t, term.Kill(context.Background()))
			},
			wantKill: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, exec := newClient(t)
			term, err := session.Open(context.Background(), client, session.Options{})
			require.NoError(t, err)
			sessionID := term.SessionID()

			tt.finish(t, term, exec)
			require.NoError(t, term.Close(context.Background()))

			assert.Equal(t, tt.wantKill, exec.CountCalls(terminal.TargetKill, sessionID))
		})
	}
}

func TestEventsStayWithTheirTerminal(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()

	a, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	defer b.Close(ctx)

	var mu sync.Mutex
	var aChunks []string
	a.OnOutput(func(data []byte, stream types.Stream) {
		mu.Lock()
		aChunks = append(aChunks, string(data))
		mu.Unlock()
		assert.Equal(t, types.StreamStdout, stream)
	})

	exec.Output(a.SessionID(), "for a\r\n")
	exec.Output(b.SessionID(), "for b\r\n")
	exec.Output("sess_stranger", "nobody\r\n")
	exec.Output(a.SessionID(), "$ ")

	require.Eventually(t, func() bool { return string(a.Output()) == "for a\r\n$ " }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return string(b.Output()) == "for b\r\n" }, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"for a\r\n", "$ "}, aChunks)
	mu.Unlock()
}

func TestExitHandler(t *testing.T) {
	client, exec := newClient(t)
	term, err := session.Open(context.Background(), client, session.Options{})
	require.NoError(t, err)

	codes := make(chan int, 1)
	term.OnExit(func(code int, signal string) {
		codes <- code
		assert.Empty(t, signal)
	})
	exec.ExitSession(term.SessionID(), 3)

	select {
	case code := <-codes:
		assert.Equal(t, 3, code)
	case <-time.After(time.Second):
		t.Fatal("exit not delivered")
	}
}

func TestWriteResizeClear(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()
	term, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	defer term.Close(ctx)

	require.NoError(t, term.Write(ctx, []byte("ls -la\n")))
	require.NoError(t, term.Write(ctx, []byte{0x03}))
	assert.Equal(t, "ls -la\n\x03", exec.Input(term.SessionID()))

	require.NoError(t, term.Resize(ctx, 132, 43))
	info, _ := exec.Session(term.SessionID())
	assert.Equal(t, 132, info.Cols)
	assert.Equal(t, 43, info.Rows)

	err = term.Resize(ctx, 0, 10)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	exec.Output(term.SessionID(), "noise")
	require.Eventually(t, func() bool { return len(term.Output()) > 0 }, time.Second, time.Millisecond)
	require.NoError(t, term.Clear(ctx))
	assert.Empty(t, term.Output())

	remote, err := client.ReadSession(ctx, term.SessionID())
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestRestartReplacesSession(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()
	term, err := session.Open(ctx, client, session.Options{Cols: 90, Rows: 20})
	require.NoError(t, err)
	defer term.Close(ctx)

	old := term.SessionID()
	exec.Output(old, "before")
	require.Eventually(t, func() bool { return len(term.Output()) > 0 }, time.Second, time.Millisecond)

	require.NoError(t, term.Restart(ctx))

	fresh := term.SessionID()
	assert.NotEqual(t, old, fresh)
	assert.True(t, term.Owned())
	assert.Empty(t, term.Output())
	assert.Equal(t, 1, exec.CountCalls(terminal.TargetKill, old))
	assert.Equal(t, 0, client.Transport().Listeners(old))
	assert.Equal(t, 1, client.Transport().Listeners(fresh))

	info, ok := exec.Session(fresh)
	require.True(t, ok)
	assert.Equal(t, 90, info.Cols)

	exec.Output(old, "stale")
	exec.Output(fresh, "after")
	require.Eventually(t, func() bool { return string(term.Output()) == "after" }, time.Second, time.Millisecond)
}

func TestRestartTakesOwnershipOfAttachedSession(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()
	_, err := client.CreateSession(ctx, types.CreateRequest{SessionID: "external"})
	require.NoError(t, err)

	term := session.Attach(client, "external")
	require.NoError(t, term.Restart(ctx))
	assert.True(t, term.Owned())

	fresh := term.SessionID()
	require.NoError(t, term.Close(ctx))
	assert.Equal(t, 1, exec.CountCalls(terminal.TargetKill, fresh))
}

func TestClosedTerminalRejectsCalls(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	term, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	require.NoError(t, term.Close(ctx))

	assert.ErrorIs(t, term.Write(ctx, []byte("x")), session.ErrClosed)
	assert.ErrorIs(t, term.Resize(ctx, 80, 24), session.ErrClosed)
	assert.ErrorIs(t, term.Clear(ctx), session.ErrClosed)
	assert.ErrorIs(t, term.Kill(ctx), session.ErrClosed)
	assert.ErrorIs(t, term.Restart(ctx), session.ErrClosed)
}

func TestOutputLimit(t *testing.T) {
	client, exec := newClient(t)
	term, err := session.Open(context.Background(), client, session.Options{OutputLimit: 8})
	require.NoError(t, err)

	exec.Output(term.SessionID(), "0123456789abcdef")
	require.Eventually(t, func() bool { return string(term.Output()) == "89abcdef" }, time.Second, time.Millisecond)
}

func TestOpenFailsWhenHostUnreachable(t *testing.T) {
	dialer := &testutil.MockDialer{}
	dialer.On("Dial", mock.Anything).Return(nil, errors.New("connection refused"))

	opts := transport.DefaultOptions()
	opts.Debounce = -1
	opts.Backoff.MaxAttempts = 0
	tr := transport.New(dialer, opts)
	t.Cleanup(func() { tr.Close() })
	tr.Connect()
	require.Eventually(t, func() bool { return tr.State() == transport.StateError }, time.Second, time.Millisecond)

	client := session.NewClient(tr, session.ClientOptions{})
	_, err := session.Open(context.Background(), client, session.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	dialer.AssertNumberOfCalls(t, "Dial", 1)
}

// slowCreate holds create calls past the client's timeout before letting
// them complete on the host.
type slowCreate struct {
	*testutil.FakeExecutor
	delay time.Duration
}

func (s *slowCreate) Execute(ctx context.Context, target string, params map[string]interface{}) (interface{}, error) {
	if target == terminal.TargetCreateSession {
		time.Sleep(s.delay)
	}
	return s.FakeExecutor.Execute(ctx, target, params)
}

func TestOpenTimeoutTerminatesHostSession(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	opts := transport.DefaultOptions()
	opts.Debounce = 5 * time.Millisecond
	tr := transport.New(transport.NewLoopback(&slowCreate{FakeExecutor: exec, delay: 300 * time.Millisecond}, transport.ServeOptions{}), opts)
	t.Cleanup(func() { tr.Close() })
	tr.Connect()
	require.Eventually(t, func() bool {
		return tr.State() == transport.StateConnected && exec.Subscribers() == 1
	}, 2*time.Second, time.Millisecond)
	client := session.NewClient(tr, session.ClientOptions{CallTimeout: 100 * time.Millisecond})

	_, err := session.Open(context.Background(), client, session.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTimeout))

	creates := exec.Calls(terminal.TargetCreateSession)
	require.Len(t, creates, 1)
	sessionID := creates[0].SessionID

	require.Eventually(t, func() bool {
		_, ok := exec.Session(sessionID)
		return !ok && exec.CountCalls(terminal.TargetKill, sessionID) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, tr.Listeners(sessionID))
}

// noShell refuses every create the way a host without the requested shell does.
type noShell struct {
	*testutil.FakeExecutor
}

func (n *noShell) Execute(ctx context.Context, target string, params map[string]interface{}) (interface{}, error) {
	if target == terminal.TargetCreateSession {
		return nil, errs.New(errs.CodeShellNotAvailable, "shell not available: fish")
	}
	return n.FakeExecutor.Execute(ctx, target, params)
}

func TestOpenRejectionSkipsTerminate(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	opts := transport.DefaultOptions()
	opts.Debounce = 5 * time.Millisecond
	tr := transport.New(transport.NewLoopback(&noShell{FakeExecutor: exec}, transport.ServeOptions{}), opts)
	t.Cleanup(func() { tr.Close() })
	tr.Connect()
	require.Eventually(t, func() bool { return tr.State() == transport.StateConnected }, 2*time.Second, time.Millisecond)
	client := session.NewClient(tr, session.ClientOptions{CallTimeout: time.Second})

	_, err := session.Open(context.Background(), client, session.Options{Shell: "fish"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrShellNotAvailable))
	assert.Empty(t, exec.Calls(terminal.TargetKill))
}

func TestCloseRetriesAfterOutage(t *testing.T) {
	client, exec := newClient(t)
	tr := client.Transport()
	ctx := context.Background()

	term, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	sessionID := term.SessionID()

	require.NoError(t, tr.Close())
	err = term.Close(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	assert.Equal(t, 0, exec.CountCalls(terminal.TargetKill, sessionID))
	assert.Equal(t, 1, tr.Listeners(sessionID))

	tr.Connect()
	require.Eventually(t, func() bool {
		return tr.State() == transport.StateConnected && exec.Subscribers() == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, term.Close(ctx))
	assert.Equal(t, 1, exec.CountCalls(terminal.TargetKill, sessionID))
	assert.Equal(t, 0, tr.Listeners(sessionID))
	_, ok := exec.Session(sessionID)
	assert.False(t, ok)

	require.NoError(t, term.Close(ctx))
	assert.Equal(t, 1, exec.CountCalls(terminal.TargetKill, sessionID))
}

func TestRestartFromExitHandler(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()

	term, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { term.Close(ctx) })
	first := term.SessionID()

	restarted := make(chan error, 1)
	var once sync.Once
	term.OnExit(func(code int, _ string) {
		once.Do(func() { restarted <- term.Restart(ctx) })
	})

	exec.ExitSession(first, 0)

	select {
	case err := <-restarted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("restart from exit handler did not return")
	}
	assert.NotEqual(t, first, term.SessionID())
	_, ok := exec.Session(term.SessionID())
	assert.True(t, ok)
}

func TestFollowReplaysEarlierOutput(t *testing.T) {
	client, exec := newClient(t)
	ctx := context.Background()

	term, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { term.Close(ctx) })

	exec.Output(term.SessionID(), "$ ")
	require.Eventually(t, func() bool { return string(term.Output()) == "$ " }, time.Second, time.Millisecond)

	var mu sync.Mutex
	var seen string
	term.Follow(func(data []byte, _ types.Stream) {
		mu.Lock()
		seen += string(data)
		mu.Unlock()
	})
	exec.Output(term.SessionID(), "ls\r\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == "$ ls\r\n"
	}, time.Second, time.Millisecond)
}
