// Package engine wires the source array, the statically-configured
// receivers, the inbound dispatcher, and the optional metrics/health/
// diagnostics surfaces into one runnable unit. It is the explicit
// EngineContext spec.md §9 calls for in place of the original
// implementation's class-level globals (global config, source array, debug
// client all living as Python class attributes on SoundObject /
// BaseRenderer).
package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/config"
	"github.com/tu-studio/osc-kreuz/internal/dispatch"
	"github.com/tu-studio/osc-kreuz/internal/health"
	"github.com/tu-studio/osc-kreuz/internal/metrics"
	"github.com/tu-studio/osc-kreuz/internal/receiver"
	"github.com/tu-studio/osc-kreuz/internal/source"
	"github.com/tu-studio/osc-kreuz/internal/statedump"
	"github.com/tu-studio/osc-kreuz/internal/statusws"
)

// Overrides carries CLI flag values that take precedence over the loaded
// configuration file, per spec.md §6's CLI surface.
type Overrides struct {
	IP           string
	PortUI       int
	PortData     int
	PortSettings int
	DebugTap     string
	Verbosity    int
}

// Engine owns every long-lived piece of the running router: the fixed
// source array, the receiver fan-out list, the inbound dispatcher, and
// whichever optional ambient surfaces (metrics, health, diagnostics
// websocket) were configured on.
type Engine struct {
	Config  *config.Config
	Sources []*source.Source

	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics
	Health     *health.Reporter
	StatusHub  *statusws.Hub
	StateDump  *statedump.Dumper

	stateDir string
	twonder  *receiver.TWonder
}

// New constructs an Engine from a loaded configuration and CLI overrides.
// It resolves every statically-configured receiver (failing construction of
// any one of them is fatal, per spec.md §7's "Invalid receiver config"
// row) and builds the inbound dispatch path binding tables, but does not
// yet open any sockets — call Serve for that.
func New(cfg *config.Config, ov Overrides, stateDir string) (*Engine, error) {
	applyOverrides(cfg, ov)

	numSources := cfg.Global.NumberSources
	numRenderers := len(cfg.Global.RenderUnits)

	params := &source.Params{
		NumRenderers:            numRenderers,
		NumDirectSends:          cfg.Global.NumberDirectSends,
		MaxGain:                 cfg.Global.MaxGain,
		SendChangesOnly:         cfg.Global.SendChangesOnly,
		DataPortTimeout:         time.Duration(cfg.Global.DataPortTimeout * float64(time.Second)),
		CoordinateScalingFactor: orOne(cfg.Global.CoordinateScalingFactor),
		MinDist:                 cfg.Global.MinDist,
	}

	sources := make([]*source.Source, numSources)
	for i := range sources {
		sources[i] = source.New(i+1, params)
	}

	e := &Engine{Config: cfg, Sources: sources, stateDir: stateDir}

	e.Dispatcher = dispatch.New(dispatch.Config{
		Sources:            sources,
		NumRenderers:       numRenderers,
		NumDirectSends:     cfg.Global.NumberDirectSends,
		RenderUnitNames:    cfg.Global.RenderUnits,
		ExtendedOscInput:   true,
		IP:                 cfg.Global.IP,
		PortUI:             cfg.Global.PortUI,
		PortData:           cfg.Global.PortData,
		PortSettings:       cfg.Global.PortSettings,
		SettingsVersionTag: "osc-kreuz",
	})
	e.Dispatcher.SetSettingsRateLimit(20)
	e.Dispatcher.SetVerbosity(ov.Verbosity)

	if ov.DebugTap != "" {
		e.Dispatcher.SetDebugTap(receiver.NewDebugTap(ov.DebugTap))
	}

	e.Dispatcher.SetWonderConnectHook(func(host string, port int) {
		e.handleWonderConnect(host, port)
	})
	e.Dispatcher.SetSubscribeHooks(e.newViewClientBase, nil, nil)

	if err := e.buildStaticReceivers(); err != nil {
		return nil, err
	}

	e.bootstrapPersistedTWonder()

	return e, nil
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1.0
	}
	return v
}

func applyOverrides(cfg *config.Config, ov Overrides) {
	if ov.IP != "" {
		cfg.Global.IP = ov.IP
	}
	if ov.PortUI != 0 {
		cfg.Global.PortUI = ov.PortUI
	}
	if ov.PortData != 0 {
		cfg.Global.PortData = ov.PortData
	}
	if ov.PortSettings != 0 {
		cfg.Global.PortSettings = ov.PortSettings
	}
}

// SetMetrics installs the prometheus collectors and wires them into the
// dispatcher. Receiver bases built by New are not hooked up (New runs
// before any Metrics is set), so flush latency and rate-limit skips are
// not recorded for them.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.Metrics = m
	e.Dispatcher.SetMetrics(m)
}

// EnableHealthReporting starts a periodic CPU/memory reporter.
func (e *Engine) EnableHealthReporting(interval time.Duration, cpuWarnPct, memWarnPct float64) {
	e.Health = health.NewReporter(interval, cpuWarnPct, memWarnPct)
	go e.Health.Run()
}

// EnableStatusWebsocket constructs the read-only diagnostics hub and
// registers it as a silent fan-out observer alongside the wire receivers.
func (e *Engine) EnableStatusWebsocket() *statusws.Hub {
	e.StatusHub = statusws.NewHub(e.Sources)
	e.Dispatcher.AddReceiver(e.StatusHub)
	return e.StatusHub
}

// EnableStateDump starts a periodic compressed state snapshot under the
// engine's state directory.
func (e *Engine) EnableStateDump(interval time.Duration) {
	numRenderers := len(e.Config.Global.RenderUnits)
	e.StateDump = statedump.NewDumper(e.Sources, e.stateDir, interval, numRenderers, e.Config.Global.NumberDirectSends)
	go e.StateDump.Run()
}

// Serve blocks, running the three inbound UDP listeners until stop is
// closed.
func (e *Engine) Serve(stop <-chan struct{}) error {
	return e.Dispatcher.Serve(e.Config.Global.IP, e.Config.Global.PortUI, e.Config.Global.PortData, e.Config.Global.PortSettings, stop)
}

// --- static receiver construction -------------------------------------------

func (e *Engine) newBase(name string, rc config.ReceiverConfig) *receiver.Base {
	endpoints := endpointsFromConfig(rc)
	interval := rc.UpdateIntervalMs
	if interval == 0 {
		interval = 50
	}
	var tap *receiver.DebugTap
	return receiver.NewBase(name, e.Config.Global.NumberSources, interval, endpoints, tap)
}

func endpointsFromConfig(rc config.ReceiverConfig) []receiver.EndpointConfig {
	if len(rc.Hosts) > 0 {
		out := make([]receiver.EndpointConfig, len(rc.Hosts))
		for i, h := range rc.Hosts {
			out[i] = receiver.EndpointConfig{Hostname: h.Hostname, Port: h.Port}
		}
		return out
	}
	if rc.Hostname != "" {
		return []receiver.EndpointConfig{{Hostname: rc.Hostname, Port: rc.Port}}
	}
	return nil
}

func (e *Engine) buildStaticReceivers() error {
	for i, rc := range e.Config.Receivers {
		name := fmt.Sprintf("%s-%d", rc.Type, i)
		r, err := e.buildReceiver(name, rc)
		if err != nil {
			return fmt.Errorf("engine: receiver %d (%s): %w", i, rc.Type, err)
		}
		if r != nil {
			if hookable, ok := r.(metricsHookable); ok && e.Metrics != nil {
				hookable.SetMetricsHooks(
					func(recv string) { e.Metrics.RecordRateLimitDrop(recv) },
					func(recv string, secs float64) { e.Metrics.ObserveFlushLatency(recv, secs) },
				)
			}
			e.Dispatcher.AddReceiver(r)
		}
	}
	return nil
}

type metricsHookable interface {
	SetMetricsHooks(onRateLimitDrop func(string), onFlush func(string, float64))
}

func (e *Engine) buildReceiver(name string, rc config.ReceiverConfig) (receiver.Notifiable, error) {
	base := e.newBase(name, rc)

	switch rc.Type {
	case "wonder":
		return receiver.NewWonder(base, rc.DataFormat), nil
	case "twonder":
		tw, err := receiver.NewTWonder(base, rc.DataFormat, e.Config.Global.NumberSources, e.Config.Global.RoomName, e.Config.Global.RoomPolygon, rc.Multicast, e.twonderStateFile())
		if err != nil {
			return nil, err
		}
		e.twonder = tw
		return tw, nil
	case "audiorouter":
		return receiver.NewAudiorouter(base), nil
	case "audiorouterwfs":
		return receiver.NewAudiorouterWFS(base), nil
	case "audiomatrix":
		return receiver.NewAudioMatrix(base, audioMatrixRules(rc.Paths)), nil
	case "supercolliderengine", "sooperlooper", "supercollider":
		return receiver.NewSuperColliderEngine(base), nil
	case "seamlessplugin":
		return receiver.NewSeamlessPlugin(base, rc.DataFormat), nil
	case "mqttbridge":
		return newMQTTBridgeReceiver(rc), nil
	default:
		return nil, fmt.Errorf("unknown receiver type %q", rc.Type)
	}
}

func audioMatrixRules(paths []config.AudioMatrixPath) []receiver.AudioMatrixRule {
	out := make([]receiver.AudioMatrixRule, 0, len(paths))
	for _, p := range paths {
		rendererIdx := -1
		fmt.Sscanf(p.Renderer, "%d", &rendererIdx)
		out = append(out, receiver.AudioMatrixRule{
			Path:        p.Path,
			Type:        p.Type,
			RendererIdx: rendererIdx,
			CoordFormat: p.Format,
		})
	}
	return out
}

func newMQTTBridgeReceiver(rc config.ReceiverConfig) receiver.Notifiable {
	posFormat := rc.DataFormat
	if posFormat == "" {
		posFormat = "xyz"
	}
	return receiver.NewMQTTBridge(receiver.MQTTBridgeConfig{
		BrokerURL: rc.Broker,
		ClientID:  rc.ClientID,
		Username:  rc.Username,
		Password:  rc.Password,
		TopicRoot: rc.Topic,
		CAFile:    rc.CAFile,
	}, posFormat)
}

// --- dynamic subscription / TWonder connect wiring --------------------------

func (e *Engine) newViewClientBase(name string) *receiver.Base {
	return receiver.NewBase(name, e.Config.Global.NumberSources, 50, nil, nil)
}

func (e *Engine) twonderStateFile() string {
	if e.stateDir == "" {
		return ""
	}
	return fmt.Sprintf("%s/twonder_state.csv", e.stateDir)
}

// handleWonderConnect implements the TWonder `/WONDER/stream/render/connect`
// control message (spec.md §4.7): it registers the sender's endpoint into
// the existing TWonder receiver, or constructs one if none exists yet and a
// room polygon is configured.
func (e *Engine) handleWonderConnect(host string, port int) {
	existing := e.findTWonder()
	if existing != nil {
		existing.ConfigureEndpoints(append(endpointsOf(existing.Base), receiver.EndpointConfig{Hostname: host, Port: port}))
		return
	}
	if len(e.Config.Global.RoomPolygon) == 0 {
		log.Printf("engine: WONDER connect from %s:%d ignored, no room_polygon configured", host, port)
		return
	}
	base := receiver.NewBase("twonder", e.Config.Global.NumberSources, 50, []receiver.EndpointConfig{{Hostname: host, Port: port}}, nil)
	tw, err := receiver.NewTWonder(base, "xy", e.Config.Global.NumberSources, e.Config.Global.RoomName, e.Config.Global.RoomPolygon, false, e.twonderStateFile())
	if err != nil {
		log.Printf("engine: could not construct twonder receiver: %v", err)
		return
	}
	e.twonder = tw
	e.Dispatcher.AddReceiver(tw)
}

func (e *Engine) findTWonder() *receiver.TWonder {
	// The dispatcher registry is not directly walkable from here without an
	// exported accessor; TWonder receivers register themselves for connect
	// handling through their own state instead. Since only one TWonder
	// receiver is meaningful per router instance, a process-wide pointer is
	// tracked on construction.
	return e.twonder
}

// bootstrapPersistedTWonder rebuilds any TWonder endpoints recorded in a
// previous run's state file (spec.md §4.8 persistence).
func (e *Engine) bootstrapPersistedTWonder() {
	stateFile := e.twonderStateFile()
	if stateFile == "" {
		return
	}
	endpoints := receiver.ReadPersistedEndpoints(stateFile)
	if len(endpoints) == 0 {
		return
	}
	if len(e.Config.Global.RoomPolygon) == 0 {
		log.Printf("engine: found %d persisted twonder endpoint(s) but no room_polygon configured, skipping", len(endpoints))
		return
	}
	base := receiver.NewBase("twonder", e.Config.Global.NumberSources, 50, endpoints, nil)
	tw, err := receiver.NewTWonder(base, "xy", e.Config.Global.NumberSources, e.Config.Global.RoomName, e.Config.Global.RoomPolygon, false, stateFile)
	if err != nil {
		log.Printf("engine: could not rebuild persisted twonder receiver: %v", err)
		return
	}
	e.twonder = tw
	e.Dispatcher.AddReceiver(tw)
}

func endpointsOf(b *receiver.Base) []receiver.EndpointConfig {
	return b.EndpointConfigs()
}
