// Package frame_demux reslices one continuous PCM stream into independent,
// fixed-size window streams, one per detector.
//
// Every cursor reads the same logical stream at its own pace. Windows never
// overlap within a cursor and are not aligned to source block boundaries.
// Samples are dropped from the shared buffer once every cursor has passed
// them.
package frame_demux

import (
	"errors"
	"fmt"

	"assistant-voice-pipeline/pipeline_errors"
)

// Source is the part of audio_source.Interface the demultiplexer needs.
type Source interface {
	NextBlock() ([]int16, error)
}

type Demultiplexer struct {
	source  Source
	buf     []int16
	base    int64 // stream offset of buf[0]
	cursors []*Cursor
	err     error
}

// Cursor yields consecutive windows of one fixed size.
type Cursor struct {
	demux *Demultiplexer
	size  int
	pos   int64
}

func New(source Source) (*Demultiplexer, error) {
	if source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	return &Demultiplexer{
		source: source,
	}, nil
}

// NewCursor registers a cursor positioned at the oldest retained sample.
func (d *Demultiplexer) NewCursor(size int) (*Cursor, error) {
	if size <= 0 {
		return nil, pipeline_errors.Configuration("window size must be positive, got %d", size)
	}

	c := &Cursor{
		demux: d,
		size:  size,
		pos:   d.base,
	}

	d.cursors = append(d.cursors, c)

	return c, nil
}

// Buffered is the number of samples currently retained.
func (d *Demultiplexer) Buffered() int {
	return len(d.buf)
}

func (d *Demultiplexer) end() int64 {
	return d.base + int64(len(d.buf))
}

// fill blocks on the source until the stream extends to at least offset.
func (d *Demultiplexer) fill(offset int64) error {
	for d.end() < offset {
		if d.err != nil {
			return d.err
		}

		block, err := d.source.NextBlock()
		if err != nil {
			var captureErr *pipeline_errors.CaptureError
			if !errors.As(err, &captureErr) {
				err = pipeline_errors.Capture("source", err)
			}

			d.err = err

			return err
		}

		d.buf = append(d.buf, block...)
		d.compact()
	}

	return nil
}

// compact discards samples every cursor has moved past.
func (d *Demultiplexer) compact() {
	if len(d.cursors) == 0 {
		return
	}

	low := d.cursors[0].pos
	for _, c := range d.cursors[1:] {
		if c.pos < low {
			low = c.pos
		}
	}

	drop := low - d.base
	if drop <= 0 {
		return
	}

	if drop >= int64(len(d.buf)) {
		// cursors may have skipped past data not read yet; fill drops it on arrival
		d.base += int64(len(d.buf))
		d.buf = d.buf[:0]

		return
	}

	n := copy(d.buf, d.buf[drop:])
	d.buf = d.buf[:n]
	d.base += drop
}

func (c *Cursor) Size() int {
	return c.size
}

// Offset is the stream offset of the next window's first sample.
func (c *Cursor) Offset() int64 {
	return c.pos
}

// Next blocks until a full window is available and returns a copy of it.
func (c *Cursor) Next() ([]int16, error) {
	d := c.demux

	if err := d.fill(c.pos + int64(c.size)); err != nil {
		return nil, err
	}

	start := c.pos - d.base
	window := make([]int16, c.size)
	copy(window, d.buf[start:start+int64(c.size)])

	c.pos += int64(c.size)
	d.compact()

	return window, nil
}

// SkipTo moves the cursor forward to offset, discarding the samples in
// between. Moving backwards is a no-op.
func (c *Cursor) SkipTo(offset int64) {
	if offset <= c.pos {
		return
	}

	c.pos = offset
	c.demux.compact()
}
