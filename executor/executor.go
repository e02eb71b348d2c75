// Package executor orchestrates a single logical command against a
// leased session: command-timeout enforcement, cooperative cancellation
// via a sidecar KILL QUERY session, and session poisoning when a timeout
// can't be confirmed cleared, per spec §4.6.
package executor

import (
	"context"
	"time"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
	"github.com/zhukovaskychina/xmysql-driver/protocol"
	"github.com/zhukovaskychina/xmysql-driver/session"
	"github.com/zhukovaskychina/xmysql-driver/xlog"
)

// Dialer opens the sidecar session Cancel uses to issue KILL QUERY,
// bypassing the pool entirely per spec §4.2's cancellation design.
type Dialer func(ctx context.Context) (*session.Session, error)

// Options configures one Executor, mirroring the DSN time-budget keys
// from spec §6.
type Options struct {
	CommandTimeout      time.Duration
	CancellationTimeout time.Duration // -1 disables KILL entirely, per spec §4.6
	GracePeriod         time.Duration // open question (a): default 500ms
}

// DefaultGracePeriod is the spec §9 open-question (a) resolution: "until
// next server packet or 500 ms, whichever first".
const DefaultGracePeriod = 500 * time.Millisecond

// Executor drives one command to completion against a leased Session.
type Executor struct {
	sess *session.Session
	dial Dialer
	opts Options
	log  *xlog.Logger
}

// New returns an Executor bound to sess. dial is used only if a command
// needs to be cancelled; it may be nil when CancellationTimeout is -1.
func New(sess *session.Session, dial Dialer, opts Options, log *xlog.Logger) *Executor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if log == nil {
		log = xlog.NewStderr("executor", "info")
	}
	return &Executor{sess: sess, dial: dial, opts: opts, log: log}
}

// Result is the outcome of ExecuteText/ExecutePrepared: exactly one of OK
// or Rows is non-nil.
type Result struct {
	OK   *session.OKResult
	Rows *RowStream
}

// ExecuteText runs sql through COM_QUERY, per spec §4.6.
func (e *Executor) ExecuteText(ctx context.Context, sql string) (*Result, error) {
	return e.run(ctx, func() (*session.OKResult, *session.ResultSet, error) {
		return e.sess.QueryText(ctx, sql)
	})
}

// ExecutePrepared runs a prepared statement through COM_STMT_EXECUTE, per
// spec §4.6.
func (e *Executor) ExecutePrepared(ctx context.Context, stmt *session.PreparedStatement, params []protocol.BoundParam) (*Result, error) {
	return e.run(ctx, func() (*session.OKResult, *session.ResultSet, error) {
		return e.sess.Execute(ctx, stmt, params)
	})
}

// run enforces CommandTimeout around cmd, following spec §4.6's
// cancellation/poison guarantees:
//   - on command timeout, cancel() fires KILL QUERY as described in §4.2;
//   - if the session returns to Ready within GracePeriod after that, the
//     caller sees QueryInterrupted;
//   - otherwise the session is poisoned and CommandTimeoutExpired is
//     returned;
//   - if CancellationTimeout == -1, no KILL is sent at all and the
//     session is poisoned immediately on timeout, per spec §4.6.
func (e *Executor) run(ctx context.Context, cmd func() (*session.OKResult, *session.ResultSet, error)) (*Result, error) {
	if e.opts.CommandTimeout <= 0 {
		return e.finish(cmd())
	}

	runCtx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		ok, rs, err := cmd()
		done <- outcome{ok, rs, err}
	}()

	select {
	case o := <-done:
		return e.finish(o.ok, o.rs, o.err)
	case <-runCtx.Done():
		return e.onTimeout(ctx, done)
	}
}

// outcome carries a command's result from run's worker goroutine.
type outcome struct {
	ok  *session.OKResult
	rs  *session.ResultSet
	err error
}

// onTimeout implements the command-timeout branch of spec §4.6. ctx is
// the caller's context: when it was cancelled, an interrupted query is
// reported as Cancelled rather than as the server's QueryInterrupted.
func (e *Executor) onTimeout(ctx context.Context, done chan outcome) (*Result, error) {
	if e.opts.CancellationTimeout < 0 {
		e.sess.Poison()
		return nil, &errkind.CommandTimeoutExpired{}
	}

	killCtx, killCancel := context.WithTimeout(context.Background(), e.opts.CancellationTimeout)
	defer killCancel()
	if err := e.sendKill(killCtx); err != nil {
		e.log.Entry().WithError(errkind.Traced(err)).Warn("KILL QUERY sidecar failed")
	}

	grace := time.NewTimer(e.opts.GracePeriod)
	defer grace.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			if se, ok := o.err.(*errkind.ServerError); ok && se.IsQueryInterrupted() {
				if ctx.Err() != nil {
					return nil, errkind.NewCancelled(se)
				}
				return nil, se
			}
		}
		return e.finish(o.ok, o.rs, o.err)
	case <-grace.C:
		e.sess.Poison()
		return nil, &errkind.CommandTimeoutExpired{}
	}
}

func (e *Executor) finish(ok *session.OKResult, rs *session.ResultSet, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	if rs != nil {
		return &Result{Rows: &RowStream{rs: rs, sess: e.sess}}, nil
	}
	return &Result{OK: ok}, nil
}

// sendKill opens a sidecar session (bypassing the pool) and issues KILL
// QUERY against e.sess's thread id, per spec §4.2.
func (e *Executor) sendKill(ctx context.Context) error {
	if e.dial == nil {
		return errkind.NewUsageError(errkind.InvalidState, "no sidecar dialer configured for cancellation")
	}
	sidecar, err := e.dial(ctx)
	if err != nil {
		return err
	}
	defer sidecar.Close()

	_, _, err = sidecar.QueryText(ctx, killQuerySQL(e.sess.ThreadID()))
	return err
}

func killQuerySQL(threadID uint32) string {
	return "KILL QUERY " + uitoa(threadID)
}

func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
