package receiver

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/ausocean/omt/omt"
	"github.com/ausocean/omt/omt/framepool"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

type recordingSink struct {
	pcm        []byte
	sampleRate int
	channels   int
}

func (s *recordingSink) WriteAudio(pcm []byte, sampleRate, channels int) {
	s.pcm = append([]byte(nil), pcm...)
	s.sampleRate = sampleRate
	s.channels = channels
}

func float32Bytes(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

func TestDeplanarizeFloat(t *testing.T) {
	sink := &recordingSink{}
	c := New(&dumbLogger{}, sink, Callbacks{}, nil)

	const samples = 3
	hdr := omt.AudioHeader{
		CodecFourCC:       omt.FourCCFPA1,
		SampleRate:        48000,
		Channels:          2,
		SamplesPerChannel: samples,
	}
	// Planar [L0,L1,L2 | R0,R1,R2].
	body := make([]byte, samples*2*4)
	lVals := []float32{1, 2, 3}
	rVals := []float32{10, 20, 30}
	for i, v := range lVals {
		copy(body[i*4:i*4+4], float32Bytes(v))
	}
	for i, v := range rVals {
		copy(body[(samples+i)*4:(samples+i)*4+4], float32Bytes(v))
	}

	c.deplanarizeFloat(hdr, body)

	if sink.sampleRate != 48000 || sink.channels != 2 {
		t.Fatalf("got sampleRate=%d channels=%d", sink.sampleRate, sink.channels)
	}
	if len(sink.pcm) != samples*2*4 {
		t.Fatalf("got %d bytes, want %d", len(sink.pcm), samples*2*4)
	}
	// Interleaved order should be L0,R0,L1,R1,L2,R2.
	want := []float32{1, 10, 2, 20, 3, 30}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(sink.pcm[i*4 : i*4+4]))
		if got != w {
			t.Fatalf("sample %d: got %v, want %v", i, got, w)
		}
	}
}

func TestDeplanarizeInt16(t *testing.T) {
	sink := &recordingSink{}
	c := New(&dumbLogger{}, sink, Callbacks{}, nil)

	const samples = 3
	hdr := omt.AudioHeader{
		CodecFourCC:       omt.FourCCPCM1,
		SampleRate:        48000,
		Channels:          2,
		SamplesPerChannel: samples,
	}
	// Planar [L0,L1,L2 | R0,R1,R2].
	body := make([]byte, samples*2*2)
	lVals := []int16{1, 2, 3}
	rVals := []int16{10, 20, 30}
	for i, v := range lVals {
		binary.LittleEndian.PutUint16(body[i*2:i*2+2], uint16(v))
	}
	for i, v := range rVals {
		binary.LittleEndian.PutUint16(body[(samples+i)*2:(samples+i)*2+2], uint16(v))
	}

	c.deplanarizeInt16(hdr, body)

	if sink.sampleRate != 48000 || sink.channels != 2 {
		t.Fatalf("got sampleRate=%d channels=%d", sink.sampleRate, sink.channels)
	}
	if len(sink.pcm) != samples*2*2 {
		t.Fatalf("got %d bytes, want %d", len(sink.pcm), samples*2*2)
	}
	// Interleaved order should be L0,R0,L1,R1,L2,R2.
	want := []int16{1, 10, 2, 20, 3, 30}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(sink.pcm[i*2 : i*2+2]))
		if got != w {
			t.Fatalf("sample %d: got %v, want %v", i, got, w)
		}
	}
}

func TestHandleVideoNV12Fallback(t *testing.T) {
	var gotW, gotH int
	var gotRGBA []byte
	c := New(&dumbLogger{}, nil, Callbacks{
		OnFrame: func(rgba []byte, width, height int) {
			gotW, gotH = width, height
			gotRGBA = append([]byte(nil), rgba...)
		},
	}, framepool.New())

	const width, height = 4, 2
	ySize := width * height
	uvSize := width * (height / 2)
	y := make([]byte, ySize)
	for i := range y {
		y[i] = 235 // white luma, limited range.
	}
	uv := make([]byte, uvSize)
	for i := range uv {
		uv[i] = 128 // neutral chroma.
	}

	hdrBytes := omt.EncodeVideoHeader(omt.VideoHeader{
		CodecFourCC: omt.FourCCNV12,
		Width:       width,
		Height:      height,
	})
	payload := append(append([]byte{}, hdrBytes...), append(y, uv...)...)

	c.handleVideo(payload)

	if gotW != width || gotH != height {
		t.Fatalf("got (w,h)=(%d,%d), want (%d,%d)", gotW, gotH, width, height)
	}
	if len(gotRGBA) != width*height*4 {
		t.Fatalf("got %d bytes, want %d", len(gotRGBA), width*height*4)
	}
	for i := 0; i < len(gotRGBA); i += 4 {
		if gotRGBA[i+3] != 0xFF {
			t.Fatalf("pixel %d: alpha = %d, want 0xFF", i/4, gotRGBA[i+3])
		}
	}
}

func TestHandleVideoRejectsOutOfRangeDimensions(t *testing.T) {
	var errored bool
	c := New(&dumbLogger{}, nil, Callbacks{
		OnError: func(detail string) { errored = true },
	}, framepool.New())

	hdrBytes := omt.EncodeVideoHeader(omt.VideoHeader{
		CodecFourCC: omt.FourCCNV12,
		Width:       0,
		Height:      100,
	})
	c.handleVideo(append(hdrBytes, make([]byte, 16)...))
	if !errored {
		t.Fatalf("expected an error for width=0")
	}
}

func TestConnectSendsHandshake(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	addr := l.Addr().(*net.TCPAddr)

	serverDone := make(chan []string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			serverDone <- nil
			return
		}
		defer conn.Close()
		var got []string
		for i := 0; i < 4; i++ {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			typ, _, payload, _, err := omt.ReadFrame(conn)
			if err != nil || typ != omt.TypeMetadata {
				break
			}
			got = append(got, omt.TrimPadding(payload))
		}
		serverDone <- got
	}()

	c := New(&dumbLogger{}, nil, Callbacks{}, nil)
	if err := c.Connect("127.0.0.1", addr.Port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Stop()

	got := <-serverDone
	want := []string{
		omt.TokenSubscribeMetadata,
		omt.TokenSubscribeVideo,
		omt.TokenSubscribeAudio,
		omt.BuildSettings("Default"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d handshake frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
