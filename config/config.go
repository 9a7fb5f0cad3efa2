/*
NAME
  config.go

DESCRIPTION
  config holds the configuration settings shared by an OMT source and an
  OMT receiver. Like revid/config.Config, it is a single flat struct with
  enum-style constants for the handful of fields that aren't plain scalars.

AUTHORS
  (module: github.com/ausocean/omt)
*/

// Package config contains the configuration settings for the OMT source
// and receiver.
package config

import (
	"time"

	"github.com/ausocean/utils/logging"
)

// Port space for dynamic source port selection (§6.1).
const (
	DefaultPort = 6500
	MinPort     = 6400
	MaxPort     = 6600
)

// Video bounds (§3).
const (
	MaxWidth  = 7680
	MaxHeight = 4320
)

// Audio capture parameters (§4.6).
const (
	AudioSampleRate  = 48000
	AudioChannels    = 2
	AudioSamplesPerPacket = 960 // 20ms at 48kHz.
)

// Quality is the value carried in <OMTSettings Quality="..."/> (§3).
type Quality string

const (
	QualityDefault Quality = "Default"
	QualityLow     Quality = "Low"
	QualityMedium  Quality = "Medium"
	QualityHigh    Quality = "High"
)

// Config holds parameters relevant to either an omt/source.Server or an
// omt/receiver.Client.
type Config struct {
	// Port is the TCP port a source listens on, or a receiver connects to.
	// Zero selects DefaultPort.
	Port int

	// Host is the receiver's target host. Unused by a source.
	Host string

	// SourceName is the human-readable name advertised via DNS-SD and
	// carried in <OMTInfo .../> (§4.3, §6.2).
	SourceName string

	// EncoderThreads is passed to the VMX encoder on creation (§6.4); zero
	// leaves the codec's own default. The receiver's decoder does not use it.
	EncoderThreads int

	// AudioEnabled gates whether the source runs the audio capture
	// emitter (§6.3: set_audio_enabled).
	AudioEnabled bool

	// Quality is the value to advertise via <OMTSettings/> on connect
	// (§4.7). Unused by a source; omt/receiver.Client does not read it and
	// always sends "Default".
	Quality Quality

	// ReadTimeout is the socket read timeout (§4.3: 5s, §4.7: 5s).
	// omt/session and omt/receiver do not read it; both use a fixed 5s.
	ReadTimeout time.Duration

	// ConnectTimeout is the receiver's initial TCP connect timeout (§4.7:
	// 5s). omt/receiver.Client does not read it and uses a fixed 5s.
	ConnectTimeout time.Duration

	// Logger receives all structured log output from this configuration's
	// owner, mirroring revid.Revid's cfg.Logger field.
	Logger logging.Logger
}

// PortOrDefault returns c.Port if set, else DefaultPort.
func (c Config) PortOrDefault() int {
	if c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

// ReadTimeoutOrDefault returns c.ReadTimeout if set, else 5s (§4.3, §4.7).
func (c Config) ReadTimeoutOrDefault() time.Duration {
	if c.ReadTimeout == 0 {
		return 5 * time.Second
	}
	return c.ReadTimeout
}

// ConnectTimeoutOrDefault returns c.ConnectTimeout if set, else 5s (§4.7).
func (c Config) ConnectTimeoutOrDefault() time.Duration {
	if c.ConnectTimeout == 0 {
		return 5 * time.Second
	}
	return c.ConnectTimeout
}

// QualityOrDefault returns c.Quality if set, else QualityDefault.
func (c Config) QualityOrDefault() Quality {
	if c.Quality == "" {
		return QualityDefault
	}
	return c.Quality
}
