// Package events bridges PostgreSQL NOTIFY to in-process wakeup signals and
// defines the payloads of the task-update event stream.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// TaskQueueChannel is the NOTIFY channel fired by the task insert trigger.
const TaskQueueChannel = "task_queue"

const (
	// listenWaitSlice bounds each WaitForNotification call so the loop stays
	// responsive to shutdown while the channel is quiet.
	listenWaitSlice = 100 * time.Millisecond

	redialInitialBackoff = time.Second
	redialMaxBackoff     = 30 * time.Second
)

// NotifyListener holds a dedicated LISTEN connection and turns notifications
// on one channel into wakeup signals. The payload is ignored: a notification
// is only a hint that new work may exist, never a unit of work itself.
type NotifyListener struct {
	connString string
	channel    string

	// conn is owned by the receive loop; the mutex exists so Stop can close
	// it after the loop has exited and redial can swap it in.
	conn   *pgx.Conn
	connMu sync.Mutex

	// wakeup has capacity 1; a burst of notifications collapses into a single
	// pending signal, which is all a claim loop needs.
	wakeup chan struct{}

	stopLoop   context.CancelFunc
	loopExited chan struct{}
}

// NewNotifyListener creates a listener for the given NOTIFY channel.
func NewNotifyListener(connString, channel string) *NotifyListener {
	return &NotifyListener{
		connString: connString,
		channel:    channel,
		wakeup:     make(chan struct{}, 1),
	}
}

// Wakeup returns the channel that receives a signal whenever notifications
// arrive. Receivers must treat a signal as a hint and still read the queue.
func (l *NotifyListener) Wakeup() <-chan struct{} {
	return l.wakeup
}

// Start dials the dedicated connection, issues LISTEN, and launches the
// receive loop. A Start error leaves the listener inert; callers fall back
// to plain polling.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}
	l.swapConn(ctx, conn)

	loopCtx, cancel := context.WithCancel(ctx)
	l.stopLoop = cancel
	l.loopExited = make(chan struct{})
	go func() {
		defer close(l.loopExited)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("Notify listener started", "channel", l.channel)
	return nil
}

// dial opens a fresh connection with LISTEN already issued.
func (l *NotifyListener) dial(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	sanitized := pgx.Identifier{l.channel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("LISTEN %s failed: %w", sanitized, err)
	}
	return conn, nil
}

// swapConn installs a new connection, closing any previous one.
func (l *NotifyListener) swapConn(ctx context.Context, conn *pgx.Conn) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
	}
	l.conn = conn
}

// receiveLoop waits for notifications in short slices until its context is
// cancelled. Only this goroutine uses the connection for waiting, so there
// is no Exec/WaitForNotification interleaving to guard against.
func (l *NotifyListener) receiveLoop(ctx context.Context) {
	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()

	for ctx.Err() == nil {
		if conn == nil {
			conn = l.redial(ctx)
			if conn == nil {
				return
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, listenWaitSlice)
		_, err := conn.WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			slog.Debug("Wakeup notification", "channel", l.channel)
			l.signal()
		case ctx.Err() != nil:
			return
		case waitCtx.Err() != nil:
			// Quiet slice; wait again.
		default:
			slog.Error("Lost LISTEN connection", "channel", l.channel, "error", err)
			l.swapConn(ctx, nil)
			conn = nil
		}
	}
}

// signal delivers a wakeup without blocking. A full buffer means the receiver
// already has a pending wakeup, which covers this notification too.
func (l *NotifyListener) signal() {
	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// redial re-establishes the connection with exponential backoff. It returns
// nil only when the context ends first. On success it fires a wakeup, since
// notifications sent while disconnected were lost and the queue must be
// re-read.
func (l *NotifyListener) redial(ctx context.Context) *pgx.Conn {
	backoff := redialInitialBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		conn, err := l.dial(ctx)
		if err != nil {
			slog.Error("LISTEN redial failed", "channel", l.channel, "error", err, "backoff", backoff)
			backoff = min(backoff*2, redialMaxBackoff)
			continue
		}

		l.swapConn(ctx, conn)
		l.signal()
		slog.Info("Notify listener reconnected", "channel", l.channel)
		return conn
	}
}

// Stop ends the receive loop, waits for it, and closes the connection. The
// wait is what makes the close safe: the loop may be blocked inside
// WaitForNotification until its context cancellation takes effect.
func (l *NotifyListener) Stop(ctx context.Context) {
	if l.stopLoop != nil {
		l.stopLoop()
	}
	if l.loopExited != nil {
		<-l.loopExited
	}
	l.swapConn(ctx, nil)
}
