package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/logging"
)

// InterfaceRadio drives a Linux network interface. Connection requests run
// an external command (nmcli by default); the link counts as up once the
// interface holds a global IPv4 address. All handler calls come from a
// single dispatcher goroutine.
type InterfaceRadio struct {
	iface          string
	command        []string
	attemptTimeout time.Duration
	pollInterval   time.Duration

	// Replaced in tests.
	run    func(ctx context.Context, argv []string) error
	lookup func(iface string) (netip.Addr, bool, error)

	creds    Credentials
	handler  Handler
	attempts chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewInterfaceRadio creates a radio for iface. command is an argv template
// where {ssid}, {password} and {interface} are substituted.
func NewInterfaceRadio(iface string, command []string, attemptTimeout time.Duration) *InterfaceRadio {
	return &InterfaceRadio{
		iface:          iface,
		command:        command,
		attemptTimeout: attemptTimeout,
		pollInterval:   500 * time.Millisecond,
		run:            runCommand,
		lookup:         interfaceIPv4,
		attempts:       make(chan struct{}, 1),
	}
}

// Start launches the dispatcher goroutine.
func (r *InterfaceRadio) Start(creds Credentials, h Handler) error {
	if r.handler != nil {
		return errors.New("radio already started")
	}
	if len(r.command) == 0 {
		return errors.New("no connect command configured")
	}
	r.creds = creds
	r.handler = h

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.dispatch(ctx)
	return nil
}

// Connect queues an attempt. Requests made while one is queued collapse.
func (r *InterfaceRadio) Connect() error {
	if r.handler == nil {
		return errors.New("radio not started")
	}
	select {
	case r.attempts <- struct{}{}:
	default:
	}
	return nil
}

// Stop ends the dispatcher and waits for it to exit.
func (r *InterfaceRadio) Stop() error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done
	return nil
}

func (r *InterfaceRadio) dispatch(ctx context.Context) {
	defer close(r.done)

	if !r.waitForInterface(ctx) {
		return
	}
	r.handler.OnInterfaceReady()

	var have netip.Addr
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.attempts:
			if addr, ok := r.attempt(ctx); ok {
				have = addr
				r.handler.OnAddressAcquired(addr)
			} else if ctx.Err() == nil {
				r.handler.OnDisconnected()
			}
		case <-ticker.C:
			// Supervise an established link
			if !have.IsValid() {
				continue
			}
			if _, ok, err := r.lookup(r.iface); err == nil && ok {
				continue
			}
			logging.Warn("wifi address lost", zap.String("interface", r.iface), zap.String("previous", have.String()))
			have = netip.Addr{}
			r.handler.OnDisconnected()
		}
	}
}

func (r *InterfaceRadio) waitForInterface(ctx context.Context) bool {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		if _, _, err := r.lookup(r.iface); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// attempt runs the connect command and polls for an address until the
// attempt timeout elapses.
func (r *InterfaceRadio) attempt(ctx context.Context) (netip.Addr, bool) {
	actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	if err := r.run(actx, r.argv()); err != nil {
		logging.Warn("wifi connect command failed", zap.Error(err))
		return netip.Addr{}, false
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		addr, ok, err := r.lookup(r.iface)
		if err == nil && ok {
			return addr, true
		}
		select {
		case <-actx.Done():
			return netip.Addr{}, false
		case <-ticker.C:
		}
	}
}

func (r *InterfaceRadio) argv() []string {
	rep := strings.NewReplacer(
		"{ssid}", r.creds.SSID,
		"{password}", r.creds.Password,
		"{interface}", r.iface,
	)
	out := make([]string, len(r.command))
	for i, a := range r.command {
		out[i] = rep.Replace(a)
	}
	return out
}

func runCommand(ctx context.Context, argv []string) error {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		// First line only; nmcli puts the reason there.
		first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
		return fmt.Errorf("%s: %w (%s)", argv[0], err, first)
	}
	return nil
}

// interfaceIPv4 returns the first global unicast IPv4 address on iface.
// A missing interface is an error; an interface without an address is not.
func interfaceIPv4(name string) (netip.Addr, bool, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Addr{}, false, err
	}
	if ifi.Flags&net.FlagUp == 0 {
		return netip.Addr{}, false, nil
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, false, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() && addr.IsGlobalUnicast() {
			return addr, true, nil
		}
	}
	return netip.Addr{}, false, nil
}
