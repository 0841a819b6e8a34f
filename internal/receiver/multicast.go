// Multicast send support for receiver endpoints whose resolved address
// falls in a multicast range (used by TWonder when configured with a
// multicast hostname). Grounded on radiod.go's use of golang.org/x/net/ipv4
// to join a multicast group on an otherwise ordinary UDP socket before
// writing to it.
package receiver

import (
	"net"

	"golang.org/x/net/ipv4"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

// Notifiable is the four-hook strategy interface every receiver dialect
// satisfies; Base provides no-op defaults so a dialect need only override
// the hooks it reacts to.
type Notifiable interface {
	OnPositionChanged(srcIdx int, src *source.Source)
	OnGainChanged(srcIdx, rendererIdx int, src *source.Source)
	OnDirectSendChanged(srcIdx, sendIdx int, src *source.Source)
	OnAttributeChanged(srcIdx int, attrName string, src *source.Source)
}

// multicastTTL is the hop count used for outbound TWonder/multicast
// datagrams; one installation-local subnet hop is all this system ever
// needs to cross.
const multicastTTL = 1

// sendMulticast writes data to a multicast UDP group on a fresh,
// unconnected socket. Sends are stateless by design (spec.md §4.4): no
// long-lived group membership is kept between calls, and no membership is
// joined at all since this socket only ever transmits.
func sendMulticast(addr *net.UDPAddr, data []byte) error {
	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return err
	}
	defer pc.Close()

	p := ipv4.NewPacketConn(pc)
	if err := p.SetMulticastTTL(multicastTTL); err != nil {
		return err
	}

	_, err = pc.WriteTo(data, addr)
	return err
}
