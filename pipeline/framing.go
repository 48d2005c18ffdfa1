package pipeline

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/flowmesh/reactor/buffer"
)

// LineFrameDecoder splits inbound bytes on '\n', stripping a trailing
// '\r' if present. It's a generic, protocol-agnostic framing
// primitive proving ByteToMessageDecoder is usable without
// implementing any concrete wire protocol (a non-goal per spec
// section 1).
type LineFrameDecoder struct {
	// MaxLength bounds how many bytes may accumulate before a
	// delimiter is found; 0 means unbounded.
	MaxLength int
}

func (d *LineFrameDecoder) Decode(ctx *HandlerContext, in *buffer.ByteBuf) (any, bool, error) {
	data := in.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if d.MaxLength > 0 && len(data) > d.MaxLength {
			return nil, false, fmt.Errorf("pipeline: line exceeds max length %d", d.MaxLength)
		}
		return nil, false, nil
	}

	frameLen := idx
	if frameLen > 0 && data[frameLen-1] == '\r' {
		frameLen--
	}

	frame := in.RetainedSlice(0, frameLen)
	if err := in.SetReaderIndex(in.ReaderIndex() + idx + 1); err != nil {
		frame.Release(1)
		return nil, false, err
	}
	return frame, true, nil
}

// LengthFieldFrameDecoder reads a fixed-width big-endian length
// prefix (2 or 4 bytes) followed by that many body bytes, the other
// generic framing primitive shipped alongside LineFrameDecoder.
type LengthFieldFrameDecoder struct {
	// LengthFieldLength is the width of the length prefix in bytes;
	// only 2 and 4 are supported, defaulting to 4.
	LengthFieldLength int
}

func (d *LengthFieldFrameDecoder) Decode(ctx *HandlerContext, in *buffer.ByteBuf) (any, bool, error) {
	lf := d.LengthFieldLength
	if lf != 2 && lf != 4 {
		lf = 4
	}
	if in.ReadableBytes() < lf {
		return nil, false, nil
	}

	data := in.Bytes()
	var frameLen int
	if lf == 2 {
		frameLen = int(binary.BigEndian.Uint16(data[:2]))
	} else {
		frameLen = int(binary.BigEndian.Uint32(data[:4]))
	}

	if in.ReadableBytes() < lf+frameLen {
		return nil, false, nil
	}

	frame := in.RetainedSlice(lf, frameLen)
	if err := in.SetReaderIndex(in.ReaderIndex() + lf + frameLen); err != nil {
		frame.Release(1)
		return nil, false, err
	}
	return frame, true, nil
}
