package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tu-studio/osc-kreuz/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			NumberSources:     4,
			NumberDirectSends: 2,
			RenderUnits:       []string{"ambi", "wfs", "reverb"},
			MaxGain:           1.0,
			IP:                "127.0.0.1",
			PortUI:            0,
			PortData:          0,
			PortSettings:      0,
		},
	}
}

func TestNewBuildsDispatcherAndSources(t *testing.T) {
	cfg := testConfig()
	e, err := New(cfg, Overrides{}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(e.Sources) != 4 {
		t.Errorf("len(Sources) = %d, want 4", len(e.Sources))
	}
	if e.Dispatcher == nil {
		t.Errorf("Dispatcher should be constructed")
	}
}

func TestNewAppliesCLIOverrides(t *testing.T) {
	cfg := testConfig()
	_, err := New(cfg, Overrides{IP: "10.0.0.5", PortUI: 9000}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Global.IP != "10.0.0.5" {
		t.Errorf("IP override not applied, got %q", cfg.Global.IP)
	}
	if cfg.Global.PortUI != 9000 {
		t.Errorf("PortUI override not applied, got %d", cfg.Global.PortUI)
	}
}

func TestNewFailsOnUnknownReceiverType(t *testing.T) {
	cfg := testConfig()
	cfg.Receivers = []config.ReceiverConfig{{Type: "not-a-real-dialect"}}
	if _, err := New(cfg, Overrides{}, ""); err == nil {
		t.Fatalf("expected an error for an unknown receiver type")
	}
}

func TestNewBuildsEachKnownReceiverType(t *testing.T) {
	cfg := testConfig()
	cfg.Global.RoomPolygon = [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}
	cfg.Receivers = []config.ReceiverConfig{
		{Type: "wonder", Hostname: "127.0.0.1", Port: 9001},
		{Type: "twonder", Hostname: "127.0.0.1", Port: 9002},
		{Type: "audiorouter", Hostname: "127.0.0.1", Port: 9003},
		{Type: "audiorouterwfs", Hostname: "127.0.0.1", Port: 9004},
		{Type: "audiomatrix", Hostname: "127.0.0.1", Port: 9005, Paths: []config.AudioMatrixPath{
			{Path: "/custom", Type: "gain", Renderer: "0"},
		}},
		{Type: "supercolliderengine", Hostname: "127.0.0.1", Port: 9006},
		{Type: "seamlessplugin", Hostname: "127.0.0.1", Port: 9007},
	}

	e, err := New(cfg, Overrides{}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.twonder == nil {
		t.Errorf("twonder receiver should be tracked on the engine")
	}
}

func TestTwonderStateFileEmptyWithoutStateDir(t *testing.T) {
	e := &Engine{}
	if got := e.twonderStateFile(); got != "" {
		t.Errorf("twonderStateFile() = %q, want empty when stateDir is unset", got)
	}
}

func TestTwonderStateFileJoinsStateDir(t *testing.T) {
	e := &Engine{stateDir: "/tmp/osc-kreuz-state"}
	want := "/tmp/osc-kreuz-state/twonder_state.csv"
	if got := e.twonderStateFile(); got != want {
		t.Errorf("twonderStateFile() = %q, want %q", got, want)
	}
}

func TestAudioMatrixRulesParsesRendererIndex(t *testing.T) {
	rules := audioMatrixRules([]config.AudioMatrixPath{
		{Path: "/a", Type: "gain", Renderer: "2"},
		{Path: "/b", Type: "position", Format: "aed"},
	})
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	if rules[0].RendererIdx != 2 {
		t.Errorf("rules[0].RendererIdx = %d, want 2", rules[0].RendererIdx)
	}
	if rules[1].CoordFormat != "aed" {
		t.Errorf("rules[1].CoordFormat = %q, want aed", rules[1].CoordFormat)
	}
}

func TestBootstrapPersistedTWonderSkipsWithoutRoomPolygon(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "twonder_state.csv")
	if err := os.WriteFile(stateFile, []byte("127.0.0.1;9100\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := testConfig()
	e, err := New(cfg, Overrides{}, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.twonder != nil {
		t.Errorf("twonder should not be rebuilt without a configured room_polygon")
	}
}

func TestBootstrapPersistedTWonderRebuildsWithRoomPolygon(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "twonder_state.csv")
	if err := os.WriteFile(stateFile, []byte("127.0.0.1;9100\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := testConfig()
	cfg.Global.RoomPolygon = [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}
	e, err := New(cfg, Overrides{}, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.twonder == nil {
		t.Errorf("twonder should be rebuilt from the persisted state file")
	}
}
