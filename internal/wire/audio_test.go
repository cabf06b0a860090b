package wire_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/voxwire/voxwire/internal/wire"
)

// buildAudioFrame assembles a raw inbound frame for decoder tests.
func buildAudioFrame(ts uint32, flags uint32, pcm []byte) []byte {
	out := make([]byte, 8+len(pcm))
	binary.LittleEndian.PutUint32(out[0:4], ts)
	binary.LittleEndian.PutUint32(out[4:8], flags)
	copy(out[8:], pcm)
	return out
}

func TestDecodeAudioFrame(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw := buildAudioFrame(12345, uint32(wire.NewAudioFlags(200, true, false)), pcm)

	f, err := wire.DecodeAudioFrame(raw)
	if err != nil {
		t.Fatalf("DecodeAudioFrame: %v", err)
	}
	if f.TimestampMS != 12345 {
		t.Errorf("timestamp = %d, want 12345", f.TimestampMS)
	}
	if got := f.Flags.Energy(); got != 200 {
		t.Errorf("energy = %d, want 200", got)
	}
	if !f.Flags.SilenceHint() {
		t.Error("silence hint not set")
	}
	if f.Flags.FirstChunk() {
		t.Error("first-chunk bit should be clear")
	}
	if !bytes.Equal(f.PCM, pcm) {
		t.Errorf("pcm = %x, want %x", f.PCM, pcm)
	}
}

func TestDecodeAudioFrame_Malformed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"five bytes", []byte{1, 2, 3, 4, 5}},
		{"header only", buildAudioFrame(0, 0, nil)},
		{"odd body", buildAudioFrame(0, 0, []byte{1, 2, 3})},
		{"reserved bits", buildAudioFrame(0, 1<<12, []byte{1, 2})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := wire.DecodeAudioFrame(tc.in); err == nil {
				t.Errorf("DecodeAudioFrame(%x) succeeded, want error", tc.in)
			}
		})
	}
}

func TestDecodeAudioFrame_ShortFrameNamesAlignment(t *testing.T) {
	t.Parallel()
	// The decode error becomes the client-visible error message, so it has
	// to say what the framing rule is.
	_, err := wire.DecodeAudioFrame([]byte{1, 2, 3, 4, 5})
	if err == nil {
		t.Fatal("5-byte frame decoded")
	}
	if !strings.Contains(err.Error(), "alignment") {
		t.Errorf("error %q does not mention alignment", err)
	}
}

func TestAudioFrame_RoundTrip(t *testing.T) {
	t.Parallel()
	frames := []wire.InboundAudioFrame{
		{TimestampMS: 0, Flags: wire.NewAudioFlags(0, false, true), PCM: []byte{0, 0}},
		{TimestampMS: 4294967295, Flags: wire.NewAudioFlags(255, true, true), PCM: []byte{1, 2, 3, 4, 5, 6}},
		{TimestampMS: 99, Flags: wire.NewAudioFlags(17, false, false), PCM: bytes.Repeat([]byte{0xAB, 0xCD}, 160)},
	}
	for _, f := range frames {
		got, err := wire.DecodeAudioFrame(wire.EncodeAudioFrame(f))
		if err != nil {
			t.Fatalf("decode(encode(%+v)): %v", f, err)
		}
		if got.TimestampMS != f.TimestampMS || got.Flags != f.Flags || !bytes.Equal(got.PCM, f.PCM) {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, f)
		}
	}
}
