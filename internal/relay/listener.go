package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Listener holds one dedicated Postgres connection, LISTENs on every relay
// channel and dispatches notifications as they arrive. A lost connection is
// retried after a fixed delay; notifications sent meanwhile are gone.
type Listener struct {
	dsn      string
	delay    time.Duration
	dispatch func(ctx context.Context, channel string, payload []byte)
	logger   *slog.Logger

	// session runs one connection lifetime. Replaced in tests.
	session func(ctx context.Context) error
}

func NewListener(dsn string, delay time.Duration, r *Relay, logger *slog.Logger) *Listener {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	l := &Listener{
		dsn:      dsn,
		delay:    delay,
		dispatch: r.Dispatch,
		logger:   logger,
	}
	l.session = l.listen
	return l
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Error("relay listener disconnected", "err", err, "retry_in", l.delay)

		timer := time.NewTimer(l.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for _, ch := range Channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	l.logger.Info("relay listener connected", "channels", len(Channels))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(ctx, n.Channel, []byte(n.Payload))
	}
}
