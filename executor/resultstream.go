package executor

import (
	"context"
	"io"

	"github.com/zhukovaskychina/xmysql-driver/protocol"
	"github.com/zhukovaskychina/xmysql-driver/session"
)

// RowStream wraps a session.ResultSet and, through NextResult, follows
// MoreResultsExists() across a multi-statement batch (spec §8 scenario 6),
// re-reading column definitions and starting the next result set so a
// caller can walk an entire batch without knowing how many statements it
// contained.
type RowStream struct {
	rs   *session.ResultSet
	sess *session.Session
}

// Columns returns the active result set's column descriptors. It changes
// across a NextResult call.
func (r *RowStream) Columns() []*protocol.Column {
	if r.rs == nil {
		return nil
	}
	return r.rs.Columns
}

// Next returns the next row of the current result set, or io.EOF once the
// current result set (not the whole batch) is exhausted. Callers that
// want to continue into a subsequent statement's result set must call
// NextResult after seeing io.EOF.
func (r *RowStream) Next() ([]protocol.Value, error) {
	if r.rs == nil {
		return nil, io.EOF
	}
	return r.rs.Next()
}

// MoreResults reports whether another statement's result follows the
// current, exhausted one in a multi-statement batch.
func (r *RowStream) MoreResults() bool {
	return r.rs != nil && r.rs.MoreResultsExists()
}

// NextResult advances to the following statement's result in a
// multi-statement batch, per spec §8 scenario 6. It must only be called
// after the current result set has been fully drained (Next returned
// io.EOF). Returns (false, nil) when the batch has no further result.
func (r *RowStream) NextResult(ctx context.Context) (bool, error) {
	if r.rs == nil || !r.rs.MoreResultsExists() {
		return false, nil
	}
	ok, rs, err := r.sess.ReadNextResult(ctx)
	if err != nil {
		return false, err
	}
	if rs != nil {
		r.rs = rs
		return true, nil
	}
	// A statement in the batch produced no rows (e.g. an UPDATE between
	// two SELECTs); fold its OK into MoreResults and keep advancing.
	if ok != nil && ok.MoreResultsExists() {
		return r.NextResult(ctx)
	}
	r.rs = nil
	return false, nil
}

// Close drains and releases the underlying result set(s).
func (r *RowStream) Close() error {
	for r.rs != nil {
		if err := r.rs.Close(); err != nil {
			r.rs = nil
			return err
		}
		more, err := r.NextResult(context.Background())
		if err != nil || !more {
			r.rs = nil
			return err
		}
	}
	return nil
}
