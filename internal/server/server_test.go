package server

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/internal/wire"
	"github.com/voxwire/voxwire/pkg/provider/llm"

	asrmock "github.com/voxwire/voxwire/pkg/provider/asr/mock"
	llmmock "github.com/voxwire/voxwire/pkg/provider/llm/mock"
	ttsmock "github.com/voxwire/voxwire/pkg/provider/tts/mock"
)

type testEnv struct {
	srv  *Server
	http *httptest.Server
	asr  *asrmock.Provider
	llm  *llmmock.Provider
	tts  *ttsmock.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	asrp := &asrmock.Provider{}
	llmp := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Hello there. "},
			{Text: "How can I help?"},
			{FinishReason: "stop"},
		},
	}
	ttsp := &ttsmock.Provider{
		AudioChunks: [][]byte{{0x01, 0x02, 0x03, 0x04}},
	}

	cfg := &config.Config{
		Session: config.SessionConfig{
			SystemPrompt: "You are a concise voice assistant.",
			TurnTimeout:  5 * time.Second,
		},
		Voice: config.VoiceConfig{VoiceID: "test-voice", SampleRate: 24000},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, session.Providers{ASR: asrp, LLM: llmp, TTS: ttsp}, nil, nil, log)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &testEnv{srv: srv, http: hs, asr: asrp, llm: llmp, tts: ttsp}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

// dial opens a websocket client connection to the test server.
func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	return conn
}

// readUntil consumes frames until one of the wanted text frame type arrives,
// returning it plus the count of binary frames seen along the way.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, want wire.FrameType) (wire.Frame, int) {
	t.Helper()
	binaryFrames := 0
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if typ == websocket.MessageBinary {
			binaryFrames++
			continue
		}
		f, err := wire.ParseFrame(data)
		if err != nil {
			t.Fatalf("malformed server frame: %v", err)
		}
		if f.Type == want {
			return f, binaryFrames
		}
	}
}

func audioFrame(energy uint8, pcm []byte) []byte {
	out := make([]byte, 8+len(pcm))
	binary.LittleEndian.PutUint32(out[0:4], 1000)
	binary.LittleEndian.PutUint32(out[4:8], uint32(wire.NewAudioFlags(energy, false, false)))
	copy(out[8:], pcm)
	return out
}

func TestWS_FullTurnOverWebsocket(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := dial(t, ctx, e.wsURL())
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"command":"start"}`)); err != nil {
		t.Fatalf("send start: %v", err)
	}

	status, _ := readUntil(t, ctx, conn, wire.TypeStatus)
	if status.Status != wire.StatusListening {
		t.Fatalf("first status = %q, want listening", status.Status)
	}
	if status.SessionID == "" {
		t.Fatal("status frame missing session_id")
	}

	if err := conn.Write(ctx, websocket.MessageBinary, audioFrame(40, []byte{0, 0, 0, 0})); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	// The mock ASR session never emits on its own; drive the final transcript.
	var asrSess *asrmock.Session
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if open := e.asr.OpenSessions(); len(open) > 0 {
			asrSess = open[0]
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if asrSess == nil {
		t.Fatal("asr stream never opened")
	}
	asrSess.EmitFinal("What is the weather like?")

	final, _ := readUntil(t, ctx, conn, wire.TypeFinalTranscript)
	if final.Content != "What is the weather like?" {
		t.Fatalf("final transcript = %q", final.Content)
	}

	var complete wire.Frame
	pcmFrames := 0
	for {
		f, n := readUntil(t, ctx, conn, wire.TypeLLMResponse)
		pcmFrames += n
		if f.IsComplete != nil && *f.IsComplete {
			complete = f
			break
		}
	}
	if complete.Content != "Hello there. How can I help?" {
		t.Fatalf("completed response = %q", complete.Content)
	}
	if pcmFrames == 0 {
		t.Error("no outbound PCM frames before completion")
	}
}

func TestWS_SessionDeregistersOnDisconnect(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, e.wsURL())
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"command":"start"}`)); err != nil {
		t.Fatalf("send start: %v", err)
	}
	readUntil(t, ctx, conn, wire.TypeStatus)

	if got := e.srv.Registry().Len(); got != 1 {
		t.Fatalf("registry size = %d, want 1", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.srv.Registry().Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry size = %d after disconnect, want 0", e.srv.Registry().Len())
}

func TestHTTP_OperationalEndpoints(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(e.http.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestApplySessionConfig_AffectsNewSessions(t *testing.T) {
	e := newTestEnv(t)

	e.srv.ApplySessionConfig(
		config.SessionConfig{SystemPrompt: "updated prompt", TurnTimeout: 30 * time.Second},
		config.VoiceConfig{VoiceID: "adam"},
	)

	cfg := e.srv.sessionConfig()
	if cfg.SystemPrompt != "updated prompt" {
		t.Errorf("SystemPrompt = %q", cfg.SystemPrompt)
	}
	if cfg.Voice.ID != "adam" {
		t.Errorf("Voice.ID = %q, want adam", cfg.Voice.ID)
	}
	if cfg.ID == "" {
		t.Error("session config missing generated ID")
	}
}
