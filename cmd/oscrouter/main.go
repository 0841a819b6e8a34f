// Command oscrouter is the stateful OSC message router described in
// SPEC_FULL.md: it terminates UI/automation/settings UDP streams, maintains
// canonical per-source state, and fans updates out to a configurable set of
// downstream receiver dialects.
//
// Flag-then-log-then-run structure mirrors main.go's CLI entry point:
// flag.Parse(), load config, log.Fatalf on fatal setup errors, then block
// serving until a termination signal arrives.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tu-studio/osc-kreuz/internal/config"
	"github.com/tu-studio/osc-kreuz/internal/engine"
	"github.com/tu-studio/osc-kreuz/internal/metrics"
	"github.com/tu-studio/osc-kreuz/internal/versioncheck"
)

// Version is this build's identity, compared against an optional
// `min_compatible_version` configuration key at startup.
const Version = "1.0.0"

// verboseFlags accumulates repeated -v occurrences into a count, matching
// the CLI surface in spec.md §6 ("-v repeatable: verbosity level").
type verboseFlags int

func (v *verboseFlags) String() string { return fmt.Sprintf("%d", int(*v)) }
func (v *verboseFlags) Set(string) error {
	*v++
	return nil
}

func main() {
	configPath := flag.String("c", "", "Path to configuration file (searches the standard discovery paths if unset)")
	ip := flag.String("i", "", "Override global.ip")
	portUI := flag.Int("u", 0, "Override global.port_ui")
	portData := flag.Int("d", 0, "Override global.port_data")
	portSettings := flag.Int("s", 0, "Override global.port_settings")
	oscDebug := flag.String("oscdebug", "", "host:port to mirror every outgoing datagram to")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus /metrics on (disabled if empty)")
	statusAddr := flag.String("status-addr", "", "Address to serve the read-only diagnostics websocket on (disabled if empty)")
	stateDir := flag.String("state-dir", defaultStateDir(), "Directory for persisted receiver endpoint state")
	healthInterval := flag.Duration("health-interval", 0, "Interval for periodic CPU/memory logging (disabled if zero)")
	dumpInterval := flag.Duration("dump-interval", 0, "Interval for writing a compressed state-directory debug snapshot (disabled if zero)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	var verbosity verboseFlags
	flag.Var(&verbosity, "v", "Increase verbosity (repeatable)")

	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(-1)
	}

	if err := versioncheck.Check(Version, cfg.Global.MinCompatibleVersion); err != nil {
		log.Printf("%v", err)
		os.Exit(-1)
	}

	eng, err := engine.New(cfg, engine.Overrides{
		IP:           *ip,
		PortUI:       *portUI,
		PortData:     *portData,
		PortSettings: *portSettings,
		DebugTap:     *oscDebug,
		Verbosity:    int(verbosity),
	}, *stateDir)
	if err != nil {
		log.Printf("could not construct router: %v", err)
		os.Exit(-1)
	}

	if *metricsAddr != "" {
		m := metrics.New()
		eng.SetMetrics(m)
		go metrics.Serve(*metricsAddr)
	}

	if *statusAddr != "" {
		hub := eng.EnableStatusWebsocket()
		mux := http.NewServeMux()
		mux.Handle("/status", hub)
		go func() {
			log.Printf("statusws: listening on %s", *statusAddr)
			if err := http.ListenAndServe(*statusAddr, mux); err != nil {
				log.Printf("statusws: server stopped: %v", err)
			}
		}()
	}

	if *healthInterval > 0 {
		eng.EnableHealthReporting(*healthInterval, 90, 90)
	}

	if *dumpInterval > 0 {
		eng.EnableStateDump(*dumpInterval)
	}

	log.Printf("osc-kreuz %s starting: ui=%d data=%d settings=%d sources=%d renderers=%d",
		Version, cfg.Global.PortUI, cfg.Global.PortData, cfg.Global.PortSettings,
		cfg.Global.NumberSources, len(cfg.Global.RenderUnits))

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("shutting down...")
		close(stop)
	}()

	if err := eng.Serve(stop); err != nil {
		log.Fatalf("listener error: %v", err)
	}
}

func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "osc-kreuz")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "osc-kreuz")
}
