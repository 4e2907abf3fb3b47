package connectivity

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
)

// scriptedLink plays back join results and link lifetimes. When the script
// runs out, Monitor cancels the run.
type scriptedLink struct {
	t       *testing.T
	m       *Manager
	now     *time.Time
	cancel  context.CancelFunc
	joins   []error
	uptimes []time.Duration

	seen []string
}

func (s *scriptedLink) Join(ctx context.Context) error {
	s.seen = append(s.seen, s.m.State().Get().String())
	if len(s.joins) == 0 {
		return nil
	}
	err := s.joins[0]
	s.joins = s.joins[1:]
	return err
}

func (s *scriptedLink) Monitor(ctx context.Context) error {
	s.seen = append(s.seen, s.m.State().Get().String())
	if len(s.uptimes) == 0 {
		s.cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	*s.now = s.now.Add(s.uptimes[0])
	s.uptimes = s.uptimes[1:]
	return errors.New("beacon lost")
}

func newScripted(t *testing.T, policy backoff.Policy) (*Manager, *scriptedLink, *[]time.Duration, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	link := &scriptedLink{t: t, now: &now, cancel: cancel}
	m := NewManager(link, Config{Backoff: policy, JoinTimeout: time.Second})
	link.m = m

	var delays []time.Duration
	m.now = func() time.Time { return now }
	m.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		now = now.Add(d)
		return ctx.Err()
	}
	return m, link, &delays, ctx
}

func testPolicy() backoff.Policy {
	return backoff.Policy{Floor: time.Second, Ceiling: 8 * time.Second, Factor: 2, StableAfter: 30 * time.Second}
}

func TestManager_RetriesWithBackoff(t *testing.T) {
	m, link, delays, ctx := newScripted(t, testPolicy())
	fail := errors.New("no AP")
	link.joins = []error{fail, fail, fail, fail, fail}

	err := m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}, *delays)
	assert.Equal(t, []string{
		"connecting(1)", "connecting(2)", "connecting(3)", "connecting(4)", "connecting(5)", "connecting(6)",
		"connected",
	}, link.seen)
	assert.Equal(t, Disconnected, m.State().Get().Phase)
}

func TestManager_FlappingLinkKeepsBackingOff(t *testing.T) {
	m, link, delays, ctx := newScripted(t, testPolicy())
	link.uptimes = []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}

	require.ErrorIs(t, m.Run(ctx), context.Canceled)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)
}

func TestManager_StableLinkResetsBackoff(t *testing.T) {
	m, link, delays, ctx := newScripted(t, testPolicy())
	link.joins = []error{errors.New("x"), errors.New("x"), errors.New("x")}
	link.uptimes = []time.Duration{time.Minute}

	require.ErrorIs(t, m.Run(ctx), context.Canceled)

	// 1s, 2s, 4s from failed joins; after a stable minute the next wait is the floor.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second}, *delays)
}

func TestManager_JoinErrorsWrapLinkError(t *testing.T) {
	m := NewManager(nil, Config{JoinTimeout: time.Millisecond})
	m.assoc = joinFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := m.join(context.Background())
	assert.ErrorIs(t, err, ErrLink)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type joinFunc func(ctx context.Context) error

func (f joinFunc) Join(ctx context.Context) error    { return f(ctx) }
func (f joinFunc) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{ConnectionState{Phase: Disconnected}, "disconnected"},
		{ConnectionState{Phase: Connecting, Attempt: 3}, "connecting(3)"},
		{ConnectionState{Phase: Connected}, "connected"},
		{ConnectionState{Phase: Degraded, Reason: "beacon lost"}, "degraded(beacon lost)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
	assert.True(t, ConnectionState{Phase: Connected}.Up())
	assert.False(t, ConnectionState{Phase: Degraded}.Up())
}

func TestInterfaceAssociator_Check(t *testing.T) {
	tests := []struct {
		name    string
		info    ifaceInfo
		lookErr error
		dialErr error
		wantErr bool
	}{
		{name: "up with address", info: ifaceInfo{up: true, addrs: 1}},
		{name: "interface down", info: ifaceInfo{up: false, addrs: 1}, wantErr: true},
		{name: "no address", info: ifaceInfo{up: true}, wantErr: true},
		{name: "missing interface", lookErr: errors.New("no such interface"), wantErr: true},
		{name: "probe refused", info: ifaceInfo{up: true, addrs: 1}, dialErr: errors.New("refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewInterfaceAssociator("wlan0", "192.168.1.1:1883", time.Second)
			a.lookup = func(string) (ifaceInfo, error) { return tt.info, tt.lookErr }
			a.dial = func(context.Context, string, string) (net.Conn, error) {
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				client, server := net.Pipe()
				_ = server.Close()
				return client, nil
			}

			err := a.Join(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLink)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
