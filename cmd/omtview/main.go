/*
NAME
  main.go

DESCRIPTION
  omtview is a headless OMT receiver: it connects to a source, logs
  status changes, and optionally tees decoded audio to a WAV file via
  --dump-wav, or a single decoded video frame to a PPM file via
  --dump-frame, for debugging (mirroring cmd/speaker's playback-oriented
  CLI, but for the receive side).

AUTHORS
  (module: github.com/ausocean/omt)
*/

// Package main is the omtview receiver CLI entry point.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/omt/omt/receiver"
	"github.com/ausocean/utils/logging"
)

const version = "v0.1.0"

const pkg = "omtview: "

const (
	logPath      = "/var/log/omtview/omtview.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	showVersion := flag.Bool("version", false, "show version")
	host := flag.String("host", "127.0.0.1", "OMT source host")
	port := flag.Int("port", 6500, "OMT source port")
	dumpWAV := flag.String("dump-wav", "", "if set, write decoded audio to this WAV file")
	dumpFrame := flag.String("dump-frame", "", "if set, write the first decoded video frame to this PPM file")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)
	log.Info(pkg+"starting", "version", version)

	var sink receiver.PlaybackSink
	var wavFile *os.File
	var enc *wav.Encoder
	if *dumpWAV != "" {
		var err error
		wavFile, err = os.Create(*dumpWAV)
		if err != nil {
			log.Fatal(pkg+"could not create wav file", "error", err.Error())
		}
		enc = wav.NewEncoder(wavFile, 48000, 32, 2, 1)
		sink = &wavSink{enc: enc, log: log}
	}

	var frameOnce sync.Once
	cb := receiver.Callbacks{
		OnFrame: func(rgba []byte, width, height int) {
			log.Debug(pkg+"decoded video frame", "width", width, "height", height)
			if *dumpFrame != "" {
				frameOnce.Do(func() {
					if err := writePPM(*dumpFrame, rgba, width, height); err != nil {
						log.Warning(pkg+"could not write frame dump", "error", err.Error())
						return
					}
					log.Info(pkg+"wrote frame dump", "path", *dumpFrame, "width", width, "height", height)
				})
			}
		},
		OnStatus: func(text string) {
			log.Info(pkg+"status", "text", text)
		},
		OnError: func(detail string) {
			log.Warning(pkg+"error", "detail", detail)
		},
	}

	c := receiver.New(log, sink, cb, nil)
	if err := c.Connect(*host, *port); err != nil {
		log.Fatal(pkg+"could not connect", "error", err.Error())
	}

	go c.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info(pkg + "shutting down")
	c.Stop()
	if enc != nil {
		enc.Close()
		wavFile.Close()
	}
}

// writePPM dumps an RGBA frame as a binary (P6) PPM, dropping the alpha
// channel since PPM carries no alpha plane.
func writePPM(path string, rgba []byte, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "P6\n%d %d\n255\n", width, height)
	rgb := make([]byte, 3)
	for i := 0; i+4 <= len(rgba); i += 4 {
		rgb[0], rgb[1], rgb[2] = rgba[i], rgba[i+1], rgba[i+2]
		if _, err := w.Write(rgb); err != nil {
			return fmt.Errorf("could not write pixel data: %w", err)
		}
	}
	return w.Flush()
}

// wavSink adapts receiver.PlaybackSink to go-audio/wav's IntBuffer-based
// Encoder.Write, converting little-endian 32-bit float samples ([-1,1])
// to signed 32-bit integer PCM.
type wavSink struct {
	enc *wav.Encoder
	log logging.Logger
}

func (s *wavSink) WriteAudio(pcm []byte, sampleRate, channels int) {
	n := len(pcm) / 4
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, n),
		SourceBitDepth: 32,
	}
	for i := 0; i < n; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4 : i*4+4]))
		buf.Data[i] = int(f * math.MaxInt32)
	}
	if err := s.enc.Write(buf); err != nil {
		s.log.Warning(pkg+"could not write wav samples", "error", err.Error())
	}
}
