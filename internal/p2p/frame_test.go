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

package p2p

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{nil, {}, []byte("x"), bytes.Repeat([]byte{0xAB}, 100_000)} {
		raw, err := EncodeFrame(Frame{Type: MsgBlock, Payload: payload})
		if err != nil {
			t.Fatalf("encode failed for %d bytes: %v", len(payload), err)
		}

		dec := NewDecoder()
		frames, err := dec.Feed(raw)
		if err != nil {
			t.Fatalf("decode failed for %d bytes: %v", len(payload), err)
		}
		if len(frames) != 1 {
			t.Fatalf("got %d frames, want 1", len(frames))
		}
		if frames[0].Type != MsgBlock {
			t.Errorf("type = %#x, want MsgBlock", uint8(frames[0].Type))
		}
		if !bytes.Equal(frames[0].Payload, payload) {
			t.Errorf("payload mismatch for %d bytes", len(payload))
		}
		if dec.Buffered() != 0 {
			t.Errorf("decoder kept %d buffered bytes after a complete frame", dec.Buffered())
		}
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := EncodeFrame(Frame{Type: MsgTx, Payload: make([]byte, MaxPayload+1)})
	if !errors.Is(err, errors.ErrFrameTooLarge) {
		t.Errorf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestDecoderHandlesFragmentedInput(t *testing.T) {
	raw, err := EncodeFrame(Frame{Type: MsgTx, Payload: []byte("hello wire")})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := NewDecoder()
	var got []Frame
	// Byte-at-a-time delivery must still produce exactly one frame.
	for _, b := range raw {
		frames, err := dec.Feed([]byte{b})
		if err != nil {
			t.Fatalf("feed failed: %v", err)
		}
		got = append(got, frames...)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if !bytes.Equal(got[0].Payload, []byte("hello wire")) {
		t.Errorf("payload = %q", got[0].Payload)
	}
}

func TestDecoderEmitsAllCompleteFrames(t *testing.T) {
	a, _ := EncodeFrame(Frame{Type: MsgPing, Payload: []byte("1")})
	b, _ := EncodeFrame(Frame{Type: MsgPong, Payload: []byte("2")})
	c, _ := EncodeFrame(Frame{Type: MsgTx, Payload: []byte("3")})

	stream := append(append(append([]byte{}, a...), b...), c[:4]...)
	dec := NewDecoder()
	frames, err := dec.Feed(stream)
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Type != MsgPing || frames[1].Type != MsgPong {
		t.Fatalf("got %d frames, want ping then pong", len(frames))
	}

	// The trailing partial frame completes on the next feed.
	frames, err = dec.Feed(c[4:])
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != MsgTx {
		t.Fatalf("trailing frame: got %d frames", len(frames))
	}
}

func TestDecoderRejectsBadMagic(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.Feed([]byte{0xDE, 0xAD, 0x01, 0x00, 0x00, 0x00, 0x00})
	if !errors.Is(err, errors.ErrBadMagic) {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
	// The decoder reset and accepts clean frames again.
	raw, _ := EncodeFrame(Frame{Type: MsgPing, Payload: nil})
	frames, err := dec.Feed(raw)
	if err != nil {
		t.Fatalf("feed after reset failed: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("got %d frames after reset, want 1", len(frames))
	}
}

func TestDecoderRejectsDeclaredOversize(t *testing.T) {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], FrameMagic)
	header[2] = byte(MsgTx)
	binary.BigEndian.PutUint32(header[3:7], MaxPayload+1)

	dec := NewDecoder()
	_, err := dec.Feed(header)
	if !errors.Is(err, errors.ErrFrameTooLarge) {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}
	if dec.Buffered() != 0 {
		t.Errorf("decoder kept %d bytes after reset", dec.Buffered())
	}
}

func TestDecoderBufferGrowsAndCompacts(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 1<<20) // 1 MiB > initial buffer
	raw, err := EncodeFrame(Frame{Type: MsgSnapshot, Payload: payload})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := NewDecoder()
	half := len(raw) / 2
	frames, err := dec.Feed(raw[:half])
	if err != nil {
		t.Fatalf("first half failed: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("half a frame decoded to %d frames", len(frames))
	}
	if dec.Buffered() != half {
		t.Errorf("buffered = %d, want %d", dec.Buffered(), half)
	}

	frames, err = dec.Feed(raw[half:])
	if err != nil {
		t.Fatalf("second half failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Payload, payload) {
		t.Error("payload mismatch after buffered reassembly")
	}
	if dec.Buffered() != 0 {
		t.Errorf("decoder kept %d bytes after completion", dec.Buffered())
	}
}

func TestXorDistanceOrdering(t *testing.T) {
	target := "0x00"
	near := "0x01"
	far := "0xf0"
	dNear := xorDistance(near, target)
	dFar := xorDistance(far, target)
	if bytes.Compare(dNear, dFar) >= 0 {
		t.Errorf("near id should sort before far id: %x >= %x", dNear, dFar)
	}

	// Malformed ids compare as maximally distant.
	if !bytes.Equal(xorDistance("zz", target), bytes.Repeat([]byte{0xFF}, 32)) {
		t.Error("malformed id should be maximally distant")
	}
}
