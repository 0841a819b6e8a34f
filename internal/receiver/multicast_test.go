package receiver

import (
	"net"
	"testing"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/oscwire"
)

func TestSendMulticastDeliversToGroup(t *testing.T) {
	group := &net.UDPAddr{IP: net.IPv4(239, 1, 2, 3), Port: 10101}

	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		t.Skipf("multicast not available in this environment: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	data := oscwire.Encode("/WONDER/global/renderpolygon", []interface{}{"room"})
	if err := sendMulticast(group, data); err != nil {
		t.Fatalf("sendMulticast: %v", err)
	}

	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	path, _, err := oscwire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if path != "/WONDER/global/renderpolygon" {
		t.Errorf("received path %q, want /WONDER/global/renderpolygon", path)
	}
}

func TestEndpointSendRoutesMulticastViaSendMulticast(t *testing.T) {
	group := &net.UDPAddr{IP: net.IPv4(239, 1, 2, 4), Port: 10102}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		t.Skipf("multicast not available in this environment: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	ep := &endpoint{hostname: group.IP.String(), port: group.Port, addr: group, multicast: true}
	data := oscwire.Encode("/WONDER/source/activate", []interface{}{0})
	if err := ep.send(data); err != nil {
		t.Fatalf("endpoint.send: %v", err)
	}

	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	path, _, err := oscwire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if path != "/WONDER/source/activate" {
		t.Errorf("received path %q, want /WONDER/source/activate", path)
	}
}
