package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/config"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/logging"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/resilience"
	"github.com/sholden3/aiorchestration-sub008/internal/session"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sessionID := flag.String("session", "", "Attach to an existing session instead of opening one")
	shellHint := flag.String("shell", "", "Shell kind or path for a new session")
	workDir := flag.String("dir", "", "Working directory for a new session")
	list := flag.Bool("list", false, "List the host's sessions and exit")
	flag.StringVar(&cfg.Transport.URL, "url", cfg.Transport.URL, "Host WebSocket endpoint")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	flag.Parse()

	logger, err := logging.New(logging.FromConfig(cfg.Logging, true))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *list {
		if err := listSessions(cfg.Transport.URL, os.Stdout); err != nil {
			logger.Fatal("Failed to list sessions", zap.Error(err))
		}
		_ = logger.Sync()
		return
	}

	code, err := run(cfg, logger, *sessionID, session.Options{Shell: *shellHint, WorkingDir: *workDir})
	if err != nil {
		logger.Error("Session failed", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	os.Exit(code)
}

func transportOptions(cfg config.TransportConfig, logger *zap.Logger) transport.Options {
	return transport.Options{
		Debounce: cfg.Debounce,
		Backoff: resilience.Backoff{
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
			Jitter:      cfg.BackoffJitter,
			MaxAttempts: cfg.MaxAttempts,
		},
		QueueSize:        cfg.QueueSize,
		MaxMessageAge:    cfg.MaxMessageAge,
		CallTimeout:      cfg.CallTimeout,
		FailureThreshold: cfg.FailureThreshold,
		Logger:           logger,
	}
}

func run(cfg *config.Config, logger *logging.Logger, sessionID string, opts session.Options) (int, error) {
	tr := transport.New(&transport.WSDialer{
		URL:     cfg.Transport.URL,
		Options: transport.WSOptions{PingInterval: cfg.Transport.PingInterval},
	}, transportOptions(cfg.Transport, logger.Component("transport")))
	defer tr.Close()

	client := session.NewClient(tr, session.ClientOptions{
		CallTimeout: cfg.Transport.CallTimeout,
		Logger:      logger.Logger,
	})
	sub := client.OnStateChange(func(s transport.ConnectionState) {
		logger.Info("Connection state", zap.Stringer("state", s))
		if s == transport.StateError {
			logger.Warn("Reconnection gave up; press Ctrl-R to retry")
		}
	})
	defer sub.Unsubscribe()
	tr.Connect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdin := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdin)
	if interactive {
		if cols, rows, err := term.GetSize(stdin); err == nil {
			opts.Cols, opts.Rows = cols, rows
		}
	}

	var (
		t   *session.Terminal
		err error
	)
	if sessionID != "" {
		t = session.Attach(client, sessionID)
	} else {
		t, err = session.Open(ctx, client, opts)
		if err != nil {
			return 1, fmt.Errorf("open session: %w", err)
		}
		logger.Info("Session opened", zap.String("session_id", t.SessionID()))
	}
	defer t.Close(context.Background())

	exited := make(chan int, 1)
	t.Follow(func(data []byte, _ types.Stream) {
		_, _ = os.Stdout.Write(data)
	})
	t.OnExit(func(code int, _ string) {
		select {
		case exited <- code:
		default:
		}
	})

	if interactive {
		state, err := term.MakeRaw(stdin)
		if err != nil {
			return 1, fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(stdin, state)
		go watchResize(ctx, stdin, t, logger.Logger)
	}

	inputDone := make(chan error, 1)
	go func() { inputDone <- pump(ctx, os.Stdin, t, tr) }()

	select {
	case code := <-exited:
		return code, nil
	case err := <-inputDone:
		if err != nil && !errors.Is(err, io.EOF) {
			return 1, err
		}
		return 0, nil
	case <-ctx.Done():
		return 130, nil
	}
}

// retryKey asks the transport for a manual reconnect after it gave up
const retryKey = 0x12 // Ctrl-R

// pump copies local input to the session
func pump(ctx context.Context, r io.Reader, t *session.Terminal, tr *transport.Transport) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := buf[:n]
			if n == 1 && data[0] == retryKey && tr.State() == transport.StateError {
				tr.Retry()
				continue
			}
			if werr := t.Write(ctx, append([]byte(nil), data...)); werr != nil && !errors.Is(werr, session.ErrClosed) {
				// Calls fail fast while the host is unreachable; keep reading
				fmt.Fprintf(os.Stderr, "\r\nwrite failed: %v\r\n", werr)
			}
		}
		if err != nil {
			return err
		}
	}
}
