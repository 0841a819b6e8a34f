package receiver

import (
	"testing"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

func testSource(t *testing.T) *source.Source {
	t.Helper()
	params := &source.Params{
		NumRenderers:            3,
		NumDirectSends:          2,
		MaxGain:                 1,
		CoordinateScalingFactor: 1,
	}
	return source.New(0, params)
}

func expectPath(t *testing.T, paths <-chan string, want string) {
	t.Helper()
	select {
	case got := <-paths:
		if got != want {
			t.Errorf("received path %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for path %q", want)
	}
}

func expectNone(t *testing.T, paths <-chan string) {
	t.Helper()
	select {
	case p := <-paths:
		t.Fatalf("unexpected message for %q", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSuperColliderEngineSendsAED(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("sc", 1, 10, []EndpointConfig{ep}, nil)
	sc := NewSuperColliderEngine(b)

	src := testSource(t)
	src.SetPosition("xyz", []float64{1, 0, 0}, false)
	sc.OnPositionChanged(0, src)

	expectPath(t, paths, "/source/pos/aed")
}

func TestWonderEmitsAutoAngleForPlanewave(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("wonder", 1, 10, []EndpointConfig{ep}, nil)
	w := NewWonder(b, "xy")

	src := testSource(t)
	src.SetAttribute("planewave", 1, false)
	src.SetPosition("xyz", []float64{1, 0, 0}, false)

	w.OnPositionChanged(0, src)
	expectPath(t, paths, "/WONDER/source/position")
	expectPath(t, paths, "/WONDER/source/angle")
}

func TestWonderSkipsAutoAngleWithoutPlanewave(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("wonder", 1, 10, []EndpointConfig{ep}, nil)
	w := NewWonder(b, "xy")

	src := testSource(t)
	src.SetPosition("xyz", []float64{1, 0, 0}, false)

	w.OnPositionChanged(0, src)
	expectPath(t, paths, "/WONDER/source/position")
	expectNone(t, paths)
}

func TestWonderAttributeChangedEncodesPlanewaveInverted(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("wonder", 1, 10, []EndpointConfig{ep}, nil)
	w := NewWonder(b, "xy")

	src := testSource(t)
	src.SetAttribute("planewave", 1, false)

	w.OnAttributeChanged(0, "planewave", src)
	expectPath(t, paths, "/WONDER/source/type")
	// planewave=1 should also trigger the auto-angle emission.
	expectPath(t, paths, "/WONDER/source/angle")
}

func TestNewTWonderRequiresRoomPolygon(t *testing.T) {
	b := NewBase("twonder", 1, 10, nil, nil)
	_, err := NewTWonder(b, "xyz", 1, "room", nil, false, "")
	if err == nil {
		t.Fatalf("expected error when room polygon is empty")
	}
}

func TestNewTWonderSendsRoomInformation(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("twonder", 2, 10, []EndpointConfig{ep}, nil)
	polygon := [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}

	_, err := NewTWonder(b, "xyz", 2, "room", polygon, false, "")
	if err != nil {
		t.Fatalf("NewTWonder: %v", err)
	}

	expectPath(t, paths, "/WONDER/global/maxNoSources")
	expectPath(t, paths, "/WONDER/source/activate")
	expectPath(t, paths, "/WONDER/source/activate")
	expectPath(t, paths, "/WONDER/global/renderpolygon")
}

func TestTWonderPersistsEndpointsUnlessMulticast(t *testing.T) {
	ep, _ := listenUDP(t)
	b := NewBase("twonder", 1, 10, []EndpointConfig{ep}, nil)
	polygon := [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}
	stateFile := t.TempDir() + "/twonder.state"

	if _, err := NewTWonder(b, "xyz", 1, "room", polygon, false, stateFile); err != nil {
		t.Fatalf("NewTWonder: %v", err)
	}

	got := ReadPersistedEndpoints(stateFile)
	if len(got) != 1 || got[0].Hostname != ep.Hostname || got[0].Port != ep.Port {
		t.Errorf("ReadPersistedEndpoints() = %v, want [%v]", got, ep)
	}
}

func TestAudiorouterOnlyRoutesSpatialAndReverb(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("ar", 1, 10, []EndpointConfig{ep}, nil)
	ar := NewAudiorouter(b)

	src := testSource(t)
	src.SetGain(0, 0.5, false)
	src.SetGain(1, 0.5, false)
	src.SetGain(2, 0.5, false)

	ar.OnGainChanged(0, 0, src)
	expectPath(t, paths, "/source/send/spatial")

	ar.OnGainChanged(0, 1, src)
	expectNone(t, paths)

	ar.OnGainChanged(0, 2, src)
	expectPath(t, paths, "/source/reverb/gain")
}

func TestAudiorouterWFSOnlyRoutesIndex1(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("arwfs", 1, 10, []EndpointConfig{ep}, nil)
	wfs := NewAudiorouterWFS(b)

	src := testSource(t)
	src.SetGain(0, 0.5, false)
	src.SetGain(1, 0.5, false)

	wfs.OnGainChanged(0, 0, src)
	expectNone(t, paths)

	wfs.OnGainChanged(0, 1, src)
	expectPath(t, paths, "/source/send/spatial")
}

func TestAudioMatrixAppliesConfiguredRules(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("am", 1, 10, []EndpointConfig{ep}, nil)
	am := NewAudioMatrix(b, []AudioMatrixRule{
		{Path: "/custom/gain", Type: "gain", RendererIdx: 0},
		{Path: "/custom/pos", Type: "position", CoordFormat: "xyz"},
	})

	src := testSource(t)
	src.SetGain(0, 0.5, false)
	am.OnGainChanged(0, 0, src)
	expectPath(t, paths, "/custom/gain")

	// renderer 1 has no configured rule.
	src.SetGain(1, 0.5, false)
	am.OnGainChanged(0, 1, src)
	expectNone(t, paths)

	src.SetPosition("xyz", []float64{1, 2, 3}, false)
	am.OnPositionChanged(0, src)
	expectPath(t, paths, "/custom/pos")
}

func TestSeamlessPluginUsesOneBasedIndices(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("seamless", 1, 10, []EndpointConfig{ep}, nil)
	sp := NewSeamlessPlugin(b, "xyz")

	src := testSource(t)
	src.SetPosition("xyz", []float64{1, 2, 3}, false)
	sp.OnPositionChanged(0, src)
	expectPath(t, paths, "/source/pos/xyz")

	src.SetGain(0, 0.5, false)
	sp.OnGainChanged(0, 0, src)
	expectPath(t, paths, "/send/gain")
}
