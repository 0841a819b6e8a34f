// Package dispatch runs the three inbound UDP listeners (UI, automation
// data, settings) described in spec.md §4.7: it expands the OSC path
// vocabulary at startup, parses incoming arguments per family, mutates
// Source state, and notifies every registered Receiver on a genuine change.
// It also hosts the settings control plane (subscribe/unsubscribe,
// ping/pong, debug taps, the TWonder connect handshake).
//
// Grounded on original_source/src/osc_kreuz/osccomcenter.py: three
// OSCThreadServer instances, setupOscBindings' per-value, per-index
// binding construction, and the subscribe/ping/pong control messages in
// setupOscSettingsBindings.
package dispatch

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tu-studio/osc-kreuz/internal/coordinate"
	"github.com/tu-studio/osc-kreuz/internal/metrics"
	"github.com/tu-studio/osc-kreuz/internal/oscpath"
	"github.com/tu-studio/osc-kreuz/internal/oscwire"
	"github.com/tu-studio/osc-kreuz/internal/receiver"
	"github.com/tu-studio/osc-kreuz/internal/source"
	"github.com/tu-studio/osc-kreuz/internal/subscription"
)

// Attribute names the Source attribute bundle knows about.
var knownAttributes = []string{"planewave", "doppler", "angle"}

type positionBinding struct {
	format string
	srcIdx int // 1-based; -1 if not extended (index comes from args)
}

type propertiesBinding struct {
	attr   string
	srcIdx int // 1-based; -1 if not extended
}

type gainBindingMode int

const (
	gainExtended   gainBindingMode = iota // source+renderer pinned by path
	gainAliasPinned                       // renderer pinned by value alias, source from args[0]
	gainGeneric                           // /source/send exact: source, renderer, gain all from args
)

type gainBinding struct {
	mode        gainBindingMode
	rendererIdx int // meaningful for gainExtended/gainAliasPinned
	srcIdx      int // 1-based, meaningful for gainExtended
}

// Config gathers everything the dispatcher needs at construction time.
type Config struct {
	Sources            []*source.Source
	NumRenderers       int
	NumDirectSends     int
	RenderUnitNames    []string // index = renderer idx
	ExtendedOscInput   bool
	IP                 string
	PortUI             int
	PortData           int
	PortSettings       int
	SettingsVersionTag string // reply payload for /oscrouter/pong
}

// Dispatcher owns the inbound listeners, the path binding table, the
// receiver registry, and the settings control plane.
type Dispatcher struct {
	cfg     Config
	sources []*source.Source

	receiversMu sync.RWMutex
	receivers   []receiver.Notifiable

	subMu         sync.Mutex
	subscriptions map[string]*receiver.ViewClient

	debugTapMu sync.Mutex
	debugTap   *receiver.DebugTap

	verbosity int32

	positionTable   map[string]positionBinding
	propertiesTable map[string]propertiesBinding
	gainTable       map[string]gainBinding

	uiConn       *net.UDPConn
	dataConn     *net.UDPConn
	settingsConn *net.UDPConn

	newViewClientBase func(name string) *receiver.Base
	onSubscribe       func(vc *receiver.ViewClient)
	onUnsubscribe     func(alias string)
	onWonderConnect   func(host string, port int)

	guard *subscription.Guard

	metrics *metrics.Metrics

	settingsLimiter *settingsRateLimiter
}

// SetSettingsRateLimit bounds how many settings-port commands per second a
// single sender IP may issue; non-positive disables the limit.
func (d *Dispatcher) SetSettingsRateLimit(ratePerSecond int) {
	d.settingsLimiter = newSettingsRateLimiter(ratePerSecond)
}

// SetMetrics installs the collectors the dispatcher updates as it routes
// messages. Safe to leave unset; every call site nil-checks it.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) { d.metrics = m }

// New builds the path binding table but does not yet open any sockets.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		cfg:             cfg,
		guard:           subscription.NewGuard(),
		sources:         cfg.Sources,
		subscriptions:   make(map[string]*receiver.ViewClient),
		positionTable:   make(map[string]positionBinding),
		propertiesTable: make(map[string]propertiesBinding),
		gainTable:       make(map[string]gainBinding),
	}
	d.buildPositionTable()
	d.buildPropertiesTable()
	d.buildGainTable()
	return d
}

// SetSubscribeHooks wires the callbacks the engine uses to turn a
// subscribe/unsubscribe command into an actual ViewClient receiver.
func (d *Dispatcher) SetSubscribeHooks(newBase func(name string) *receiver.Base, onSubscribe func(*receiver.ViewClient), onUnsubscribe func(string)) {
	d.newViewClientBase = newBase
	d.onSubscribe = onSubscribe
	d.onUnsubscribe = onUnsubscribe
}

// SetWonderConnectHook wires the TWonder `/WONDER/stream/render/connect`
// handler.
func (d *Dispatcher) SetWonderConnectHook(f func(host string, port int)) {
	d.onWonderConnect = f
}

// AddReceiver registers a statically-configured receiver in construction
// order.
func (d *Dispatcher) AddReceiver(r receiver.Notifiable) {
	d.receiversMu.Lock()
	defer d.receiversMu.Unlock()
	d.receivers = append(d.receivers, r)
}

func (d *Dispatcher) receiversSnapshot() []receiver.Notifiable {
	d.receiversMu.RLock()
	defer d.receiversMu.RUnlock()
	out := make([]receiver.Notifiable, len(d.receivers))
	copy(out, d.receivers)
	return out
}

func (d *Dispatcher) appendReceiver(r receiver.Notifiable) {
	d.receiversMu.Lock()
	d.receivers = append(d.receivers, r)
	d.receiversMu.Unlock()
}

func (d *Dispatcher) removeReceiver(r receiver.Notifiable) {
	d.receiversMu.Lock()
	defer d.receiversMu.Unlock()
	for i, existing := range d.receivers {
		if existing == r {
			d.receivers = append(d.receivers[:i], d.receivers[i+1:]...)
			return
		}
	}
}

// SetDebugTap installs or clears the global debug-copy endpoint.
func (d *Dispatcher) SetDebugTap(tap *receiver.DebugTap) {
	d.debugTapMu.Lock()
	d.debugTap = tap
	d.debugTapMu.Unlock()
}

// --- path table construction -------------------------------------------------

func (d *Dispatcher) buildPositionTable() {
	for _, format := range coordinate.AllFormats() {
		for _, p := range oscpath.Expand(oscpath.Position, format, nil) {
			d.positionTable[p] = positionBinding{format: format, srcIdx: -1}
		}
		if !d.cfg.ExtendedOscInput {
			continue
		}
		for i := 1; i <= len(d.sources); i++ {
			idx := i
			for _, p := range oscpath.Expand(oscpath.Position, format, &idx) {
				d.positionTable[p] = positionBinding{format: format, srcIdx: idx}
			}
		}
	}
}

func (d *Dispatcher) buildPropertiesTable() {
	for _, attr := range knownAttributes {
		for _, p := range oscpath.Expand(oscpath.Properties, attr, nil) {
			d.propertiesTable[p] = propertiesBinding{attr: attr, srcIdx: -1}
		}
		if !d.cfg.ExtendedOscInput {
			continue
		}
		for i := 1; i <= len(d.sources); i++ {
			idx := i
			for _, p := range oscpath.Expand(oscpath.Properties, attr, &idx) {
				d.propertiesTable[p] = propertiesBinding{attr: attr, srcIdx: idx}
			}
		}
	}
}

func (d *Dispatcher) buildGainTable() {
	// three hardcoded generic paths, per spec.md §4.7
	d.gainTable["/source/send/spatial"] = gainBinding{mode: gainGeneric}
	d.gainTable["/send/gain"] = gainBinding{mode: gainGeneric}
	d.gainTable["/source/send"] = gainBinding{mode: gainGeneric}

	for rendererIdx, name := range d.cfg.RenderUnitNames {
		for _, p := range oscpath.Expand(oscpath.Gain, name, nil) {
			d.gainTable[p] = gainBinding{mode: gainAliasPinned, rendererIdx: rendererIdx}
		}
		for i := 1; i <= len(d.sources); i++ {
			idx := i
			for _, p := range oscpath.Expand(oscpath.Gain, name, &idx) {
				d.gainTable[p] = gainBinding{mode: gainExtended, rendererIdx: rendererIdx, srcIdx: idx}
			}
		}
	}
}

// --- low-level helpers --------------------------------------------------------

func sourceLegit(id, numSources int) bool {
	return id >= 1 && id <= numSources
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toFloats(args []interface{}) ([]float64, bool) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, ok := asFloat(a)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// checkPort validates a port number carried as an OSC argument (supplement
// from original_source/src/osc_kreuz/osccomcenter.py's checkPort).
func checkPort(port int) bool {
	return port > 1023 && port < 65536
}

// checkIP validates a hostname/IP string, accepting "localhost" as a
// synonym for 127.0.0.1.
func checkIP(host string) bool {
	if host == "localhost" {
		return true
	}
	return net.ParseIP(host) != nil
}

// --- dispatch entry points -----------------------------------------------------

// HandleMessage routes one decoded inbound OSC message. fromUI distinguishes
// the UI listener from the data/automation listener; fromSettings marks
// messages received on the settings port, and senderIP/senderPort identify
// the originating endpoint (used by subscribe/ping/WONDER connect).
func (d *Dispatcher) HandleMessage(path string, args []interface{}, fromUI, fromSettings bool, senderIP string, senderPort int) {
	if atomic.LoadInt32(&d.verbosity) >= 2 {
		log.Printf("dispatch: recv %s %v from %s:%d (ui=%v settings=%v)", path, args, senderIP, senderPort, fromUI, fromSettings)
	}

	if fromSettings {
		if d.settingsLimiter != nil && !d.settingsLimiter.allow(senderIP) {
			d.recordDispatchError("settings_rate_limited")
			return
		}
		if d.handleSettings(path, args, senderIP, senderPort) {
			return
		}
	}

	if path == "/WONDER/stream/render/connect" {
		d.handleWonderConnect(args, senderIP)
		return
	}

	if binding, ok := d.positionTable[path]; ok {
		d.handlePosition(binding, args, fromUI)
		d.recordDispatch("position")
		return
	}
	if binding, ok := d.propertiesTable[path]; ok {
		d.handleAttribute(binding, args, fromUI)
		d.recordDispatch("attribute")
		return
	}
	if path == "/source/send/direct" {
		d.handleDirectSend(args, fromUI)
		d.recordDispatch("direct_send")
		return
	}
	if binding, ok := d.gainTable[path]; ok {
		d.handleGain(binding, args, fromUI)
		d.recordDispatch("gain")
		return
	}

	d.recordDispatchError("unrecognised_path")
	if atomic.LoadInt32(&d.verbosity) >= 1 {
		log.Printf("dispatch: unrecognised path %s", path)
	}
}

func (d *Dispatcher) recordDispatch(family string) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(family)
	}
}

func (d *Dispatcher) recordDispatchError(reason string) {
	if d.metrics != nil {
		d.metrics.RecordDispatchError(reason)
	}
}

func (d *Dispatcher) handlePosition(b positionBinding, args []interface{}, fromUI bool) {
	var srcIdx1 int
	var values []float64

	if b.srcIdx >= 0 {
		srcIdx1 = b.srcIdx
		vs, ok := toFloats(args)
		if !ok {
			log.Printf("dispatch: invalid position arguments on %s", b.format)
			return
		}
		values = vs
	} else {
		if len(args) < 1 {
			log.Printf("dispatch: missing source index for position %s", b.format)
			return
		}
		idx, ok := asInt(args[0])
		if !ok {
			log.Printf("dispatch: source index is not an integer")
			return
		}
		srcIdx1 = idx
		vs, ok := toFloats(args[1:])
		if !ok {
			log.Printf("dispatch: invalid position arguments on %s", b.format)
			return
		}
		values = vs
	}

	if !sourceLegit(srcIdx1, len(d.sources)) {
		log.Printf("dispatch: source index %d out of range", srcIdx1)
		return
	}

	src := d.sources[srcIdx1-1]
	changed, err := src.SetPosition(b.format, values, fromUI)
	if err != nil {
		log.Printf("dispatch: %v", err)
		return
	}
	if changed {
		for _, r := range d.receiversSnapshot() {
			r.OnPositionChanged(srcIdx1-1, src)
		}
	}
}

func (d *Dispatcher) handleAttribute(b propertiesBinding, args []interface{}, fromUI bool) {
	var srcIdx1 int
	var value float64

	if b.srcIdx >= 0 {
		srcIdx1 = b.srcIdx
		if len(args) < 1 {
			return
		}
		v, ok := asFloat(args[0])
		if !ok {
			return
		}
		value = v
	} else {
		if len(args) < 2 {
			return
		}
		idx, ok := asInt(args[0])
		if !ok {
			log.Printf("dispatch: source index is not an integer")
			return
		}
		srcIdx1 = idx
		v, ok := asFloat(args[1])
		if !ok {
			return
		}
		value = v
	}

	if !sourceLegit(srcIdx1, len(d.sources)) {
		log.Printf("dispatch: source index %d out of range", srcIdx1)
		return
	}

	src := d.sources[srcIdx1-1]
	changed, err := src.SetAttribute(b.attr, value, fromUI)
	if err != nil {
		log.Printf("dispatch: %v", err)
		return
	}
	if changed {
		for _, r := range d.receiversSnapshot() {
			r.OnAttributeChanged(srcIdx1-1, b.attr, src)
		}
	}
}

func (d *Dispatcher) handleGain(b gainBinding, args []interface{}, fromUI bool) {
	var srcIdx1, rendererIdx int
	var gain float64

	switch b.mode {
	case gainExtended:
		if len(args) < 1 {
			return
		}
		v, ok := asFloat(args[len(args)-1])
		if !ok {
			return
		}
		srcIdx1 = b.srcIdx
		rendererIdx = b.rendererIdx
		gain = v
	case gainAliasPinned:
		if len(args) < 2 {
			return
		}
		idx, ok := asInt(args[0])
		if !ok {
			log.Printf("dispatch: source index is not an integer")
			return
		}
		v, ok := asFloat(args[len(args)-1])
		if !ok {
			return
		}
		srcIdx1 = idx
		rendererIdx = b.rendererIdx
		gain = v
	case gainGeneric:
		if len(args) < 3 {
			return
		}
		idx, ok := asInt(args[0])
		if !ok {
			log.Printf("dispatch: source index is not an integer")
			return
		}
		r, ok := asInt(args[1])
		if !ok {
			return
		}
		v, ok := asFloat(args[2])
		if !ok {
			return
		}
		srcIdx1, rendererIdx, gain = idx, r, v
	}

	if !sourceLegit(srcIdx1, len(d.sources)) {
		log.Printf("dispatch: source index %d out of range", srcIdx1)
		return
	}
	if rendererIdx < 0 || rendererIdx >= d.cfg.NumRenderers {
		log.Printf("dispatch: renderer index %d out of range", rendererIdx)
		return
	}

	src := d.sources[srcIdx1-1]
	changed, err := src.SetGain(rendererIdx, gain, fromUI)
	if err != nil {
		log.Printf("dispatch: %v", err)
		return
	}
	if changed {
		for _, r := range d.receiversSnapshot() {
			r.OnGainChanged(srcIdx1-1, rendererIdx, src)
		}
	}
}

func (d *Dispatcher) handleDirectSend(args []interface{}, fromUI bool) {
	if len(args) < 3 {
		return
	}
	srcIdx1, ok := asInt(args[0])
	if !ok {
		log.Printf("dispatch: source index is not an integer")
		return
	}
	sendIdx, ok := asInt(args[1])
	if !ok {
		return
	}
	gain, ok := asFloat(args[2])
	if !ok {
		return
	}
	if !sourceLegit(srcIdx1, len(d.sources)) {
		log.Printf("dispatch: source index %d out of range", srcIdx1)
		return
	}
	if sendIdx < 0 || sendIdx >= d.cfg.NumDirectSends {
		log.Printf("dispatch: direct-send index %d out of range", sendIdx)
		return
	}

	src := d.sources[srcIdx1-1]
	changed, err := src.SetDirectSend(sendIdx, gain, fromUI)
	if err != nil {
		log.Printf("dispatch: %v", err)
		return
	}
	if changed {
		for _, r := range d.receiversSnapshot() {
			r.OnDirectSendChanged(srcIdx1-1, sendIdx, src)
		}
	}
}

// --- settings control plane ----------------------------------------------------

// handleSettings processes the settings-port control plane. It returns true
// if path was recognised as a settings command (whether or not it
// succeeded), so the caller does not fall through to the state-mutation
// tables.
func (d *Dispatcher) handleSettings(path string, args []interface{}, senderIP string, senderPort int) bool {
	const prefixOld = "/oscrouter"
	const prefixNew = "/osckreuz"

	var rest string
	switch {
	case strings.HasPrefix(path, prefixOld):
		rest = strings.TrimPrefix(path, prefixOld)
	case strings.HasPrefix(path, prefixNew):
		rest = strings.TrimPrefix(path, prefixNew)
	default:
		return false
	}

	switch rest {
	case "/subscribe":
		d.handleSubscribe(args, senderIP)
	case "/unsubscribe":
		d.handleUnsubscribe(args)
	case "/ping":
		d.handlePing(args, senderIP)
	case "/pong":
		d.handlePong(args)
	case "/debug/osccopy":
		d.handleDebugOscCopy(args)
	case "/debug/verbose":
		d.handleDebugVerbose(args)
	case "/dump":
		// reserved: full-state replay, not yet requested by any consumer.
	default:
		return false
	}
	return true
}

func (d *Dispatcher) handleSubscribe(args []interface{}, senderIP string) {
	if len(args) < 2 {
		log.Printf("subscribe: missing name/port")
		return
	}
	name, ok := args[0].(string)
	if !ok {
		return
	}
	port, ok := asInt(args[1])
	if !ok || !checkPort(port) {
		log.Printf("subscribe: invalid port from %s", name)
		return
	}
	if !checkIP(senderIP) {
		log.Printf("subscribe: invalid sender address %q", senderIP)
		return
	}

	format := "xyz"
	if len(args) >= 3 {
		if f, ok := args[2].(string); ok {
			format = f
		}
	}
	indexAsValue := false
	if len(args) >= 4 {
		if v, ok := asInt(args[3]); ok {
			indexAsValue = v != 0
		}
	}
	updateIntervalMs := 50
	if len(args) >= 5 {
		if v, ok := asInt(args[4]); ok {
			updateIntervalMs = v
		}
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	if existing, ok := d.subscriptions[name]; ok {
		_ = existing
		log.Printf("subscribe: duplicate subscription for %q, ignoring", name)
		return
	}

	if d.newViewClientBase == nil {
		return
	}
	base := d.newViewClientBase(name)
	base.ConfigureEndpoints([]receiver.EndpointConfig{{Hostname: senderIP, Port: port}})
	base.SetUpdateInterval(updateIntervalMs)
	vc := receiver.NewViewClient(base, name, format, indexAsValue, d.cfg.PortSettings, len(d.sources), d.cfg.RenderUnitNames, func(alias string) {
		d.subMu.Lock()
		delete(d.subscriptions, alias)
		d.subMu.Unlock()
		d.removeReceiver2(alias)
		d.guard.Forget(alias)
	})

	traceID := d.guard.Register(name)
	log.Printf("subscribe: %q from %s:%d (trace %s)", name, senderIP, port, traceID)

	if d.metrics != nil {
		vc.SetMissHook(func(alias string) { d.metrics.RecordHeartbeatMiss(alias) })
	}

	d.subscriptions[name] = vc
	d.appendReceiver(vc)
	if d.metrics != nil {
		d.metrics.SetSubscriberCount(len(d.subscriptions))
	}
	receiver.DumpPositions(vc, d.sources)
	receiver.DumpGains(vc, d.sources, d.cfg.NumRenderers)
	vc.StartWatchdog()

	if d.onSubscribe != nil {
		d.onSubscribe(vc)
	}
}

// removeReceiver2 removes a dead ViewClient (looked up by alias, since the
// watchdog callback only knows the name) from the receiver list.
func (d *Dispatcher) removeReceiver2(alias string) {
	d.receiversMu.Lock()
	defer d.receiversMu.Unlock()
	for i, r := range d.receivers {
		if vc, ok := r.(*receiver.ViewClient); ok && vc.Alias == alias {
			d.receivers = append(d.receivers[:i], d.receivers[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) handleUnsubscribe(args []interface{}) {
	if len(args) < 1 {
		return
	}
	name, ok := args[0].(string)
	if !ok {
		return
	}
	d.subMu.Lock()
	vc, ok := d.subscriptions[name]
	if ok {
		delete(d.subscriptions, name)
	}
	d.subMu.Unlock()
	if !ok {
		log.Printf("unsubscribe: unknown name %q", name)
		return
	}
	vc.Stop()
	d.removeReceiver(vc)
	d.guard.Forget(name)
	if d.metrics != nil {
		d.subMu.Lock()
		d.metrics.SetSubscriberCount(len(d.subscriptions))
		d.subMu.Unlock()
	}
	if d.onUnsubscribe != nil {
		d.onUnsubscribe(name)
	}
}

func (d *Dispatcher) handlePing(args []interface{}, senderIP string) {
	if len(args) < 1 {
		return
	}
	port, ok := asInt(args[0])
	if !ok || !checkPort(port) {
		return
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", senderIP, port))
	if err != nil {
		return
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write(oscwire.Encode("/oscrouter/pong", pongArgs(d.cfg.SettingsVersionTag)))
}

func (d *Dispatcher) handlePong(args []interface{}) {
	if len(args) < 1 {
		return
	}
	name, ok := args[0].(string)
	if !ok {
		return
	}
	d.subMu.Lock()
	vc, ok := d.subscriptions[name]
	d.subMu.Unlock()
	if !ok {
		return
	}
	vc.ReceivedPong()
}

func (d *Dispatcher) handleDebugOscCopy(args []interface{}) {
	if len(args) < 1 {
		d.SetDebugTap(nil)
		return
	}
	hostPort, ok := args[0].(string)
	if !ok || hostPort == "" {
		d.SetDebugTap(nil)
		return
	}
	d.SetDebugTap(receiver.NewDebugTap(hostPort))
}

func (d *Dispatcher) handleDebugVerbose(args []interface{}) {
	if len(args) < 1 {
		return
	}
	level, ok := asInt(args[0])
	if !ok || level < 0 || level > 2 {
		return
	}
	atomic.StoreInt32(&d.verbosity, int32(level))
}

// SetVerbosity sets the initial trace level, clamped to the 0-2 range the
// settings-port `debug/verbose` command also uses. Lets the CLI's repeated
// `-v` flag seed the same knob the control plane adjusts at runtime.
func (d *Dispatcher) SetVerbosity(level int) {
	if level < 0 {
		level = 0
	}
	if level > 2 {
		level = 2
	}
	atomic.StoreInt32(&d.verbosity, int32(level))
}

func (d *Dispatcher) handleWonderConnect(args []interface{}, senderIP string) {
	if d.onWonderConnect == nil {
		return
	}
	if len(args) == 0 {
		d.onWonderConnect(senderIP, 0)
		return
	}
	if host, ok := args[0].(string); ok && len(args) == 1 {
		d.onWonderConnect(host, 0)
		return
	}
	if len(args) >= 2 {
		host, hostOK := args[0].(string)
		port, portOK := asInt(args[1])
		if hostOK && portOK {
			d.onWonderConnect(host, port)
		}
	}
}

// pongArgs builds the /oscrouter/pong argument list, optionally carrying a
// version/identity tag.
func pongArgs(tag string) []interface{} {
	if tag == "" {
		return nil
	}
	return []interface{}{tag}
}
