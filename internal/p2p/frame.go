// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

// Package p2p implements the authenticated peer fabric: a framed TCP wire
// protocol with signed handshakes, deduplicated gossip, discovery and a
// relay hook toward the HTTP gossip surface.
//
// Frame layout: magic:u16 (0xC0C1) | type:u8 | length:u32 | payload.
// Payloads are JSON with >53-bit numerics as decimal strings.
package p2p

import (
	"encoding/binary"

	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// Frame magic and size limits.
const (
	FrameMagic uint16 = 0xC0C1

	// HeaderSize is magic + type + length.
	HeaderSize = 2 + 1 + 4

	// MaxPayload caps a single frame payload (16 MiB).
	MaxPayload = 16 << 20

	// MaxBufferSize hard-caps the streaming decoder's buffer (32 MiB);
	// overflow resets the decoder and surfaces an error.
	MaxBufferSize = 32 << 20
)

// MsgType identifies a frame's payload.
type MsgType uint8

// Wire message types.
const (
	MsgHandshake    MsgType = 0x01
	MsgHandshakeAck MsgType = 0x02
	MsgBlock        MsgType = 0x10
	MsgTx           MsgType = 0x11
	MsgBlockReq     MsgType = 0x12
	MsgBlockResp    MsgType = 0x13
	MsgSnapshot     MsgType = 0x20
	MsgSnapshotReq  MsgType = 0x21
	MsgBftPrepare   MsgType = 0x30
	MsgBftCommit    MsgType = 0x31
	MsgFindNode     MsgType = 0x40
	MsgFindNodeResp MsgType = 0x41
	MsgPing         MsgType = 0xF0
	MsgPong         MsgType = 0xF1
)

// Frame is one wire message.
type Frame struct {
	Type    MsgType
	Payload []byte
}

// EncodeFrame serializes a frame to wire bytes.
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, errors.ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.BigEndian.PutUint16(buf[0:2], FrameMagic)
	buf[2] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// Decoder is a streaming frame accumulator. Feed appends raw stream bytes
// and emits every complete frame available; the internal buffer grows by
// doubling to amortize copies and is compacted after each drain.
type Decoder struct {
	buf   []byte
	start int // consumed offset
	end   int // filled offset
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 4096)}
}

// Buffered returns the number of bytes awaiting a complete frame.
func (d *Decoder) Buffered() int { return d.end - d.start }

// Feed appends data and returns all complete frames. On malformed input
// (bad magic, oversized payload, buffer overflow) the decoder resets and
// returns the error.
func (d *Decoder) Feed(data []byte) ([]Frame, error) {
	if err := d.grow(len(data)); err != nil {
		d.reset()
		return nil, err
	}
	copy(d.buf[d.end:], data)
	d.end += len(data)

	var frames []Frame
	for {
		avail := d.end - d.start
		if avail < HeaderSize {
			break
		}
		header := d.buf[d.start : d.start+HeaderSize]
		if binary.BigEndian.Uint16(header[0:2]) != FrameMagic {
			d.reset()
			return frames, errors.ErrBadMagic
		}
		length := binary.BigEndian.Uint32(header[3:7])
		if length > MaxPayload {
			d.reset()
			return frames, errors.ErrFrameTooLarge
		}
		if avail < HeaderSize+int(length) {
			break
		}
		payload := make([]byte, length)
		copy(payload, d.buf[d.start+HeaderSize:d.start+HeaderSize+int(length)])
		frames = append(frames, Frame{Type: MsgType(header[2]), Payload: payload})
		d.start += HeaderSize + int(length)
	}
	d.compact()
	return frames, nil
}

// grow ensures room for n more bytes, doubling up to the hard cap.
func (d *Decoder) grow(n int) error {
	need := d.end - d.start + n
	if need > MaxBufferSize {
		return errors.ErrBufferOverflow
	}
	if d.end+n <= len(d.buf) {
		return nil
	}
	// Compact first; reallocate only if still short.
	d.compact()
	if d.end+n <= len(d.buf) {
		return nil
	}
	size := len(d.buf)
	for size < need {
		size *= 2
	}
	if size > MaxBufferSize {
		size = MaxBufferSize
	}
	next := make([]byte, size)
	copy(next, d.buf[d.start:d.end])
	d.end -= d.start
	d.start = 0
	d.buf = next
	return nil
}

func (d *Decoder) compact() {
	if d.start == 0 {
		return
	}
	copy(d.buf, d.buf[d.start:d.end])
	d.end -= d.start
	d.start = 0
}

func (d *Decoder) reset() {
	d.start = 0
	d.end = 0
}
