// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/neuroarchive/adnimeta/internal/aggregate"
)

// MsgpackSink encodes the whole snapshot as one MessagePack value.
type MsgpackSink struct {
	w io.Writer
}

// NewMsgpackSink creates a MsgpackSink writing to w.
func NewMsgpackSink(w io.Writer) *MsgpackSink {
	return &MsgpackSink{w: w}
}

// Write implements Sink.
func (s *MsgpackSink) Write(ctx context.Context, snap *aggregate.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := msgpack.NewEncoder(s.w)
	enc.SetSortMapKeys(true)
	return enc.Encode(snap)
}

// ReadSnapshot decodes a snapshot written by MsgpackSink.
func ReadSnapshot(r io.Reader) (*aggregate.Snapshot, error) {
	var snap aggregate.Snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
