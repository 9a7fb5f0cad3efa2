/*
NAME
  discovery.go

DESCRIPTION
  discovery implements the DNS-SD collaborator of §6.2: advertising a
  running OMT source and browsing for OMT sources on the local network,
  using the service type "_omt._tcp." No repo in the retrieved pack
  implements mDNS/DNS-SD, so this package is built directly on
  github.com/grandcat/zeroconf, the standard pure-Go register/browse
  library, following the teacher's convention of a small adapter type
  wrapping a third-party client with a logging.Logger and a Start/Stop
  lifecycle (as device/alsa.ALSA wraps yobert/alsa.Device).
*/

package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/ausocean/utils/logging"
)

const pkg = "discovery: "

// ServiceType is the DNS-SD service type OMT sources and receivers use
// (§6.2). The trailing dot is required for vMix/OMT Viewer compatibility.
const ServiceType = "_omt._tcp."

// Advertiser registers an OMT source on the local network via mDNS.
type Advertiser struct {
	log    logging.Logger
	server *zeroconf.Server
}

// NewAdvertiser returns an Advertiser ready to Start.
func NewAdvertiser(log logging.Logger) *Advertiser { return &Advertiser{log: log} }

// InstanceName formats a service instance name per §6.2: "<HOST>
// (<SourceName>)", unless sourceName already contains parentheses, in
// which case it is used verbatim.
func InstanceName(host, sourceName string) string {
	if strings.ContainsAny(sourceName, "()") {
		return sourceName
	}
	return fmt.Sprintf("%s (%s)", host, sourceName)
}

// Start registers instanceName at port on ServiceType (§6.2: "once its TCP
// listener is bound").
func (a *Advertiser) Start(instanceName string, port int) error {
	server, err := zeroconf.Register(instanceName, ServiceType, "local.", port, nil, nil)
	if err != nil {
		return fmt.Errorf("%scould not register mDNS service: %w", pkg, err)
	}
	a.server = server
	a.log.Info(pkg+"advertising", "name", instanceName, "port", port)
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Source is one resolved OMT source (§6.2: "(name, host, port)").
type Source struct {
	Name string
	Host string
	Port int
}

// Browser enumerates OMT sources advertising ServiceType.
type Browser struct {
	log logging.Logger
}

// NewBrowser returns a Browser ready to Browse.
func NewBrowser(log logging.Logger) *Browser { return &Browser{log: log} }

// Browse enumerates sources for the given duration and returns every
// resolved entry (§6.2: "resolve each to (name, host, port)").
func (b *Browser) Browse(ctx context.Context, timeout time.Duration) ([]Source, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("%scould not create mDNS resolver: %w", pkg, err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var sources []Source
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			host := entry.HostName
			for _, ip := range entry.AddrIPv4 {
				host = ip.String()
				break
			}
			sources = append(sources, Source{
				Name: entry.Instance,
				Host: host,
				Port: entry.Port,
			})
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(browseCtx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("%scould not browse: %w", pkg, err)
	}
	<-browseCtx.Done()
	<-done

	b.log.Debug(pkg+"browse complete", "found", len(sources))
	return sources, nil
}
