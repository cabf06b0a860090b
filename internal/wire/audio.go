package wire

import (
	"encoding/binary"
	"fmt"
)

// audioHeaderSize is the fixed inbound binary frame header: a 32-bit
// client-local millisecond timestamp followed by 32 status-flag bits, both
// little-endian.
const audioHeaderSize = 8

// Status-flag layout. The low byte carries coarse energy; bits 10..31 are
// reserved and must be zero.
const (
	flagEnergyMask   uint32 = 0x000000FF
	flagSilenceHint  uint32 = 1 << 8
	flagFirstChunk   uint32 = 1 << 9
	flagReservedMask uint32 = ^uint32(0x3FF)
)

// AudioFlags is the 32-bit status word of an inbound audio frame.
type AudioFlags uint32

// Energy returns the client-computed coarse energy estimate (0–255).
func (f AudioFlags) Energy() uint8 {
	return uint8(uint32(f) & flagEnergyMask)
}

// SilenceHint reports whether the client marked this frame as silence.
func (f AudioFlags) SilenceHint() bool {
	return uint32(f)&flagSilenceHint != 0
}

// FirstChunk reports whether this is the first frame of a capture stream.
func (f AudioFlags) FirstChunk() bool {
	return uint32(f)&flagFirstChunk != 0
}

// NewAudioFlags assembles a status word from its parts. Used by tests and by
// client tooling; the server only decodes.
func NewAudioFlags(energy uint8, silenceHint, firstChunk bool) AudioFlags {
	f := uint32(energy)
	if silenceHint {
		f |= flagSilenceHint
	}
	if firstChunk {
		f |= flagFirstChunk
	}
	return AudioFlags(f)
}

// InboundAudioFrame is one client → server binary frame: an 8-byte header
// followed by 16 kHz mono int16 LE PCM.
type InboundAudioFrame struct {
	// TimestampMS is the client-local capture timestamp in milliseconds.
	TimestampMS uint32

	// Flags is the status word (energy, silence hint, first-chunk bit).
	Flags AudioFlags

	// PCM is the audio body. Its length is a positive multiple of 2.
	PCM []byte
}

// DecodeAudioFrame parses a binary frame. The PCM slice aliases data; callers
// that retain the frame beyond the lifetime of data must copy it.
//
// A frame is malformed when it is shorter than the header plus one sample,
// when the body is not 16-bit aligned, or when reserved flag bits are set.
// Malformed frames are dropped by the caller, not surfaced to the client.
func DecodeAudioFrame(data []byte) (InboundAudioFrame, error) {
	if len(data) < audioHeaderSize+2 {
		return InboundAudioFrame{}, fmt.Errorf("wire: audio frame too short: %d bytes for 8-byte header and 2-byte sample alignment", len(data))
	}
	body := data[audioHeaderSize:]
	if len(body)%2 != 0 {
		return InboundAudioFrame{}, fmt.Errorf("wire: audio body alignment: %d bytes is not a multiple of 2", len(body))
	}
	flags := binary.LittleEndian.Uint32(data[4:8])
	if flags&flagReservedMask != 0 {
		return InboundAudioFrame{}, fmt.Errorf("wire: audio frame reserved flag bits set: %#x", flags)
	}
	return InboundAudioFrame{
		TimestampMS: binary.LittleEndian.Uint32(data[0:4]),
		Flags:       AudioFlags(flags),
		PCM:         body,
	}, nil
}

// EncodeAudioFrame serialises a frame into the wire layout. The inverse of
// [DecodeAudioFrame]; used by tests and client tooling.
func EncodeAudioFrame(f InboundAudioFrame) []byte {
	out := make([]byte, audioHeaderSize+len(f.PCM))
	binary.LittleEndian.PutUint32(out[0:4], f.TimestampMS)
	binary.LittleEndian.PutUint32(out[4:8], uint32(f.Flags))
	copy(out[audioHeaderSize:], f.PCM)
	return out
}
