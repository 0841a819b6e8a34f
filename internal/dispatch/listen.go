package dispatch

import (
	"log"
	"net"

	"github.com/tu-studio/osc-kreuz/internal/oscwire"
)

// udpServer is one of the three inbound sockets (UI, data, settings). The
// run loop mirrors AudioReceiver.receiveLoop's read-decode-dispatch shape.
type udpServer struct {
	conn       *net.UDPConn
	fromUI     bool
	fromSettings bool
}

// Serve opens the UI, data, and settings sockets and blocks until stop is
// closed. It is meant to run in its own goroutine from main.
func (d *Dispatcher) Serve(ip string, portUI, portData, portSettings int, stop <-chan struct{}) error {
	servers := make([]*udpServer, 0, 3)

	ui, err := listen(ip, portUI)
	if err != nil {
		return err
	}
	servers = append(servers, &udpServer{conn: ui, fromUI: true})

	data, err := listen(ip, portData)
	if err != nil {
		ui.Close()
		return err
	}
	servers = append(servers, &udpServer{conn: data, fromUI: false})

	settings, err := listen(ip, portSettings)
	if err != nil {
		ui.Close()
		data.Close()
		return err
	}
	servers = append(servers, &udpServer{conn: settings, fromUI: false, fromSettings: true})

	d.uiConn, d.dataConn, d.settingsConn = ui, data, settings

	for _, srv := range servers {
		go d.serveOne(srv)
	}

	<-stop
	for _, srv := range servers {
		srv.conn.Close()
	}
	return nil
}

func listen(ip string, port int) (*net.UDPConn, error) {
	return net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(ip), Port: port})
}

func (d *Dispatcher) serveOne(srv *udpServer) {
	buffer := make([]byte, 65536)
	for {
		n, addr, err := srv.conn.ReadFromUDP(buffer)
		if err != nil {
			return
		}
		path, args, err := oscwire.Decode(buffer[:n])
		if err != nil {
			log.Printf("dispatch: malformed packet from %s: %v", addr, err)
			continue
		}
		d.HandleMessage(path, args, srv.fromUI, srv.fromSettings, addr.IP.String(), addr.Port)
	}
}
