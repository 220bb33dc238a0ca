// Package discovery advertises the node's status page over mDNS.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/logging"
)

const (
	// ServiceType is the mDNS service type for the status page
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."
)

// Service describes what is advertised.
type Service struct {
	Instance string
	Port     int
	DeviceID string
	Kind     string
	Version  string
}

// TXT returns the TXT records for the service.
func (s Service) TXT() []string {
	return []string{
		"id=" + s.DeviceID,
		"kind=" + s.Kind,
		"version=" + s.Version,
	}
}

// PortFromAddr extracts the port from a listen address such as ":80".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error) {
	return zeroconf.Register(instance, service, domain, port, text, ifaces)
}

// Advertiser keeps an mDNS registration alive until Shutdown.
type Advertiser struct {
	server shutdowner
}

// Advertise registers the service on all multicast interfaces.
func Advertise(svc Service) (*Advertiser, error) {
	return advertise(svc, zeroconfRegister)
}

func advertise(svc Service, register registerFunc) (*Advertiser, error) {
	if svc.Instance == "" {
		return nil, fmt.Errorf("mdns instance name not set")
	}
	server, err := register(svc.Instance, ServiceType, ServiceDomain, svc.Port, svc.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	logging.Info("mdns service registered",
		zap.String("instance", svc.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", svc.Port),
	)
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	logging.Debug("mdns service withdrawn")
}
