// Package receiver implements the dialect-agnostic fan-out engine (per-source
// update coalescing, rate-limited dispatch, best-effort UDP send, debug tap)
// and the catalogue of receiver dialects that translate canonical source
// state changes into each downstream's own wire contract.
//
// The base engine is grounded on
// original_source/src/osc_kreuz/renderer/base_renderer.py's BaseRenderer:
// the same primary/swap per-source update sets, the same non-blocking
// per-source semaphore gate, and the same one-shot rescheduling timer.
package receiver

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/oscwire"
	"github.com/tu-studio/osc-kreuz/internal/source"
	"github.com/tu-studio/osc-kreuz/internal/update"
)

// DebugTap duplicates every outgoing datagram to a single debug endpoint,
// prefixing the path with the originating dialect and destination so a
// human watching the tap can see exactly what went where. It mirrors
// BaseRenderer's oscDebugClient.
type DebugTap struct {
	mu   sync.Mutex
	addr *net.UDPAddr
}

// NewDebugTap resolves hostPort ("host:port") once; a nil return disables
// the tap.
func NewDebugTap(hostPort string) *DebugTap {
	if hostPort == "" {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		log.Printf("debug tap: could not resolve %q: %v", hostPort, err)
		return nil
	}
	return &DebugTap{addr: addr}
}

func (d *DebugTap) send(path string, args []interface{}) {
	if d == nil {
		return
	}
	d.mu.Lock()
	addr := d.addr
	d.mu.Unlock()
	if addr == nil {
		return
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write(oscwire.Encode(path, args))
}

// EndpointConfig names one downstream target by hostname/port.
type EndpointConfig struct {
	Hostname string
	Port     int
}

// endpoint is a resolved (or resolution-pending) downstream target.
type endpoint struct {
	hostname  string
	port      int
	addr      *net.UDPAddr
	multicast bool
}

// resolveEndpoint performs the bounded DNS retry loop described in
// spec.md §4.4: up to 120 attempts at 1-second intervals before falling
// back to per-send resolution with the raw hostname string.
func resolveEndpoint(name string, cfg EndpointConfig) *endpoint {
	ep := &endpoint{hostname: cfg.Hostname, port: cfg.Port}
	for attempt := 0; attempt < 120; attempt++ {
		ips, err := net.LookupIP(cfg.Hostname)
		if err == nil && len(ips) > 0 {
			ep.addr = &net.UDPAddr{IP: ips[0], Port: cfg.Port}
			ep.multicast = ips[0].IsMulticast()
			return ep
		}
		time.Sleep(time.Second)
	}
	log.Printf("%s: could not resolve %q after 120 attempts, will retry per-send", name, cfg.Hostname)
	return ep
}

// resolvedAddr returns a usable *net.UDPAddr, resolving lazily if
// construction-time resolution never succeeded.
func (e *endpoint) resolvedAddr() (*net.UDPAddr, error) {
	if e.addr != nil {
		return e.addr, nil
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", e.hostname, e.port))
	if err != nil {
		return nil, err
	}
	e.multicast = addr.IP.IsMulticast()
	return addr, nil
}

func (e *endpoint) send(data []byte) error {
	addr, err := e.resolvedAddr()
	if err != nil {
		return err
	}
	if e.multicast {
		return sendMulticast(addr, data)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(data)
	return err
}

func (e *endpoint) key() string {
	return fmt.Sprintf("%s:%d", e.hostname, e.port)
}

// sourceSlot holds one source's pending update set and the non-blocking
// rate-limit gate that guards flushing it.
type sourceSlot struct {
	setMu   sync.Mutex
	primary map[update.Key]*update.Update
	swap    map[update.Key]*update.Update
	gate    sync.Mutex
}

func newSourceSlot() *sourceSlot {
	return &sourceSlot{
		primary: make(map[update.Key]*update.Update),
		swap:    make(map[update.Key]*update.Update),
	}
}

// Base is the dialect-agnostic engine every receiver dialect embeds. It
// implements Notifiable with no-op hooks; dialects override the ones they
// react to.
type Base struct {
	Name           string
	endpoints      []*endpoint
	updateInterval time.Duration
	slots          []*sourceSlot
	debugTap       *DebugTap

	onRateLimitDrop func(receiver string)
	onFlush         func(receiver string, seconds float64)
}

// SetMetricsHooks installs optional callbacks for rate-limit skips and
// flush latency observations. Either argument may be nil.
func (b *Base) SetMetricsHooks(onRateLimitDrop func(receiver string), onFlush func(receiver string, seconds float64)) {
	b.onRateLimitDrop = onRateLimitDrop
	b.onFlush = onFlush
}

// NewBase constructs the fan-out engine for one receiver instance.
// updateIntervalMs is the configured per-(receiver,source) minimum gap
// between dispatches, in milliseconds.
func NewBase(name string, numSources int, updateIntervalMs int, endpoints []EndpointConfig, debugTap *DebugTap) *Base {
	b := &Base{
		Name:           name,
		updateInterval: time.Duration(updateIntervalMs) * time.Millisecond,
		slots:          make([]*sourceSlot, numSources),
		debugTap:       debugTap,
	}
	for i := range b.slots {
		b.slots[i] = newSourceSlot()
	}
	for _, cfg := range endpoints {
		b.endpoints = append(b.endpoints, resolveEndpoint(name, cfg))
	}
	if len(b.endpoints) == 0 {
		log.Printf("%s: no endpoints configured, all sends will be dropped", name)
	}
	return b
}

// SetUpdateInterval overrides the per-(receiver,source) rate limit after
// construction, for receivers whose interval is only known once a
// subscribe handshake carries it.
func (b *Base) SetUpdateInterval(updateIntervalMs int) {
	b.updateInterval = time.Duration(updateIntervalMs) * time.Millisecond
}

// EndpointConfigs returns the currently configured endpoints, for callers
// that need to append to them (the TWonder connect handshake).
func (b *Base) EndpointConfigs() []EndpointConfig {
	out := make([]EndpointConfig, len(b.endpoints))
	for i, ep := range b.endpoints {
		out[i] = EndpointConfig{Hostname: ep.hostname, Port: ep.port}
	}
	return out
}

// ConfigureEndpoints (re)resolves and installs endpoints after
// construction, for receivers whose destination is only known once a
// subscribe/connect handshake arrives (ViewClient, TWonder).
func (b *Base) ConfigureEndpoints(endpoints []EndpointConfig) {
	resolved := make([]*endpoint, 0, len(endpoints))
	for _, cfg := range endpoints {
		resolved = append(resolved, resolveEndpoint(b.Name, cfg))
	}
	b.endpoints = resolved
}

// AddUpdate enqueues u for source srcIdx and attempts an immediate flush.
func (b *Base) AddUpdate(srcIdx int, u *update.Update) {
	if srcIdx < 0 || srcIdx >= len(b.slots) {
		return
	}
	slot := b.slots[srcIdx]
	slot.setMu.Lock()
	slot.primary[u.Key()] = u
	slot.setMu.Unlock()
	b.maybeFlush(srcIdx)
}

// maybeFlush is the non-blocking rate-limit gate from spec.md §4.4 step 4-5.
func (b *Base) maybeFlush(srcIdx int) {
	slot := b.slots[srcIdx]
	if !slot.gate.TryLock() {
		if b.onRateLimitDrop != nil {
			b.onRateLimitDrop(b.Name)
		}
		return
	}

	slot.setMu.Lock()
	if len(slot.primary) == 0 {
		slot.setMu.Unlock()
		slot.gate.Unlock()
		return
	}
	slot.primary, slot.swap = slot.swap, slot.primary
	batch := slot.swap
	slot.swap = make(map[update.Key]*update.Update)
	slot.setMu.Unlock()

	start := time.Now()
	msgs := make([]update.Message, 0, len(batch))
	for _, u := range batch {
		msgs = append(msgs, u.ToMessage())
	}
	b.send(msgs)
	elapsed := time.Since(start)
	if b.onFlush != nil {
		b.onFlush(b.Name, elapsed.Seconds())
	}

	delay := b.updateInterval - elapsed
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		slot.gate.Unlock()
		slot.setMu.Lock()
		pending := len(slot.primary) > 0
		slot.setMu.Unlock()
		if pending {
			b.maybeFlush(srcIdx)
		}
	})
}

// send transmits every message to every resolved endpoint, isolating
// failures to a single (endpoint, message) pair per spec.md §4.4 step 6-7.
func (b *Base) send(msgs []update.Message) {
	for _, msg := range msgs {
		data := oscwire.Encode(msg.Path, msg.Values)
		for _, ep := range b.endpoints {
			start := time.Now()
			if err := ep.send(data); err != nil {
				log.Printf("%s: send to %s failed: %v", b.Name, ep.key(), err)
				continue
			}
			if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
				log.Printf("%s: send to %s took %s", b.Name, ep.key(), elapsed)
			}
			if b.debugTap != nil {
				b.debugTap.send(fmt.Sprintf("/d%s/%s%s", b.Name, ep.key(), msg.Path), msg.Values)
			}
		}
	}
}

// Default no-op notification hooks; dialects override the ones they care
// about by defining a method of the same name on the embedding type.

func (b *Base) OnPositionChanged(srcIdx int, src *source.Source)               {}
func (b *Base) OnGainChanged(srcIdx, rendererIdx int, src *source.Source)      {}
func (b *Base) OnDirectSendChanged(srcIdx, sendIdx int, src *source.Source)    {}
func (b *Base) OnAttributeChanged(srcIdx int, attrName string, src *source.Source) {}

// DumpPositions replays every source's current position through
// OnPositionChanged; used by ViewClient on subscription (spec.md §4.5) and
// available generically for any dialect that needs a full-state replay.
func DumpPositions(r Notifiable, sources []*source.Source) {
	for i, s := range sources {
		r.OnPositionChanged(i, s)
	}
}

// DumpGains replays every source's renderer gains through OnGainChanged.
func DumpGains(r Notifiable, sources []*source.Source, numRenderers int) {
	for i, s := range sources {
		for rIdx := 0; rIdx < numRenderers; rIdx++ {
			r.OnGainChanged(i, rIdx, s)
		}
	}
}
