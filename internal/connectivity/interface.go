package connectivity

import (
	"context"
	"fmt"
	"net"
	"time"
)

// InterfaceAssociator treats a host network interface as the wireless link.
// The link is up when the interface is up, holds an address and, if
// ProbeAddress is set, a TCP connection to it succeeds.
type InterfaceAssociator struct {
	Interface    string
	ProbeAddress string
	PollInterval time.Duration

	// Replaced in tests.
	lookup func(name string) (ifaceInfo, error)
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

type ifaceInfo struct {
	up    bool
	addrs int
}

// NewInterfaceAssociator creates an associator for the named interface.
// An empty name skips the interface check and relies on the probe alone.
func NewInterfaceAssociator(iface, probe string, poll time.Duration) *InterfaceAssociator {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	d := &net.Dialer{}
	return &InterfaceAssociator{
		Interface:    iface,
		ProbeAddress: probe,
		PollInterval: poll,
		lookup:       lookupInterface,
		dial:         d.DialContext,
	}
}

func lookupInterface(name string) (ifaceInfo, error) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return ifaceInfo{}, err
	}
	addrs, err := ifc.Addrs()
	if err != nil {
		return ifaceInfo{}, err
	}
	return ifaceInfo{up: ifc.Flags&net.FlagUp != 0, addrs: len(addrs)}, nil
}

// Join checks the link once.
func (a *InterfaceAssociator) Join(ctx context.Context) error {
	return a.check(ctx)
}

// Monitor re-checks the link every PollInterval until a check fails.
func (a *InterfaceAssociator) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(a.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, a.PollInterval)
			err := a.check(checkCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (a *InterfaceAssociator) check(ctx context.Context) error {
	if a.Interface != "" {
		info, err := a.lookup(a.Interface)
		if err != nil {
			return fmt.Errorf("%w: interface %s: %w", ErrLink, a.Interface, err)
		}
		if !info.up {
			return fmt.Errorf("%w: interface %s is down", ErrLink, a.Interface)
		}
		if info.addrs == 0 {
			return fmt.Errorf("%w: interface %s has no address", ErrLink, a.Interface)
		}
	}

	if a.ProbeAddress != "" {
		conn, err := a.dial(ctx, "tcp", a.ProbeAddress)
		if err != nil {
			return fmt.Errorf("%w: probe %s: %w", ErrLink, a.ProbeAddress, err)
		}
		_ = conn.Close()
	}

	return nil
}
