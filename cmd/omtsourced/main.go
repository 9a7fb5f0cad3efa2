/*
NAME
  main.go

DESCRIPTION
  omtsourced is a daemon that runs a single OMT source: it starts the
  sender server, advertises it via DNS-SD, and logs status/error events
  until interrupted.

AUTHORS
  (module: github.com/ausocean/omt)
*/

// Package main is the omtsourced daemon entry point.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/omt/config"
	"github.com/ausocean/omt/omt/discovery"
	"github.com/ausocean/omt/omt/source"
	"github.com/ausocean/utils/logging"
)

const version = "v0.1.0"

const pkg = "omtsourced: "

// Logging configuration, matching the teacher's daemon defaults.
const (
	logPath      = "/var/log/omtsourced/omtsourced.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	showVersion := flag.Bool("version", false, "show version")
	port := flag.Int("port", config.DefaultPort, "TCP port to listen on")
	name := flag.String("name", "OMT Source", "source name advertised via DNS-SD")
	audio := flag.Bool("audio", true, "enable audio capture")
	threads := flag.Int("threads", 0, "VMX encoder thread count (0 = library default)")
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

	cfg := config.Config{
		Port:           *port,
		SourceName:     *name,
		EncoderThreads: *threads,
		AudioEnabled:   *audio,
		Logger:         log,
	}

	video := source.NewVideoProducer(log, cfg.EncoderThreads)
	var audioEmitter *source.AudioEmitter
	if cfg.AudioEnabled {
		var err error
		audioEmitter, err = source.NewAudioEmitter(log)
		if err != nil {
			log.Warning(pkg+"audio capture unavailable, continuing without it", "error", err.Error())
			cfg.AudioEnabled = false
		}
	}

	srv := source.New(cfg, video, audioEmitter)
	if err := srv.Start(); err != nil {
		log.Fatal(pkg+"could not start source", "error", err.Error())
	}

	adv := discovery.NewAdvertiser(log)
	instance := discovery.InstanceName(hostname(), cfg.SourceName)
	if err := adv.Start(instance, cfg.PortOrDefault()); err != nil {
		log.Warning(pkg+"could not advertise via DNS-SD", "error", err.Error())
	}

	go logEvents(log, srv)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info(pkg + "shutting down")
	adv.Stop()
	srv.Stop()
}

func logEvents(log logging.Logger, srv *source.Server) {
	for ev := range srv.Events() {
		switch ev.Kind {
		case "listening":
			log.Info(pkg + "listening")
		case "client_connected":
			log.Info(pkg+"client connected", "peer", ev.Peer)
		case "client_disconnected":
			log.Info(pkg+"client disconnected", "peer", ev.Peer)
		case "status":
			log.Info(pkg+"status",
				"fps", ev.Status.FPS,
				"width", ev.Status.Width,
				"height", ev.Status.Height,
				"codec", ev.Status.Codec,
				"avgEncodeMS", ev.Status.AvgEncodeMS,
				"clients", ev.Status.ClientCount,
				"totalFrames", ev.Status.TotalFrames)
		case "error":
			log.Warning(pkg+"error", "peer", ev.Peer, "detail", ev.Detail)
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "omt-source"
	}
	return h
}
