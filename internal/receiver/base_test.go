package receiver

import (
	"net"
	"testing"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/oscwire"
	"github.com/tu-studio/osc-kreuz/internal/update"
)

// listenUDP opens an ephemeral UDP socket for the test to receive on and
// returns its EndpointConfig along with a channel of decoded paths.
func listenUDP(t *testing.T) (EndpointConfig, <-chan string) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	paths := make(chan string, 16)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			path, _, err := oscwire.Decode(buf[:n])
			if err != nil {
				continue
			}
			paths <- path
		}
	}()

	addr := conn.LocalAddr().(*net.UDPAddr)
	return EndpointConfig{Hostname: "127.0.0.1", Port: addr.Port}, paths
}

func TestBaseAddUpdateSendsToEndpoint(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("test", 4, 10, []EndpointConfig{ep}, nil)

	u := update.NewGain("/source/send/spatial", 1, true, 0, true, 0.5)
	b.AddUpdate(0, u)

	select {
	case p := <-paths:
		if p != "/source/send/spatial" {
			t.Errorf("received path %q, want /source/send/spatial", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the update to be sent")
	}
}

func TestBaseCoalescesSameKeyUpdates(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("test", 4, 200, []EndpointConfig{ep}, nil)

	b.AddUpdate(0, update.NewGain("/source/send/spatial", 1, true, 0, true, 0.1))

	select {
	case <-paths:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first flush")
	}

	// These two share a coalescing key; only the latest value should survive
	// to the next flush once the rate-limit window reopens.
	b.AddUpdate(0, update.NewGain("/source/send/spatial", 1, true, 0, true, 0.2))
	b.AddUpdate(0, update.NewGain("/source/send/spatial", 1, true, 0, true, 0.3))

	select {
	case <-paths:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the coalesced flush")
	}

	select {
	case p := <-paths:
		t.Fatalf("unexpected extra message received for %q; coalescing should have merged the two updates", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestEndpointConfigsRoundTrip(t *testing.T) {
	eps := []EndpointConfig{{Hostname: "host-a", Port: 1}, {Hostname: "host-b", Port: 2}}
	b := NewBase("test", 1, 10, eps, nil)
	got := b.EndpointConfigs()
	if len(got) != 2 || got[0].Hostname != "host-a" || got[1].Port != 2 {
		t.Errorf("EndpointConfigs() = %v, want %v", got, eps)
	}
}
