package receiver

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tu-studio/osc-kreuz/internal/source"
	"github.com/tu-studio/osc-kreuz/internal/update"
)

// Spatial is the common case covered by spatial_renderer.py: a single
// position update per change, no other hooks.
type Spatial struct {
	*Base
	PosFormat string
	PosPath   string
}

func (s *Spatial) OnPositionChanged(srcIdx int, src *source.Source) {
	pos, err := src.GetPosition(s.PosFormat)
	if err != nil {
		return
	}
	s.AddUpdate(srcIdx, update.NewPosition(s.PosPath, srcIdx, false, s.PosFormat, pos, nil))
}

// SuperColliderEngine is a Spatial dialect with fixed aed wire format.
func NewSuperColliderEngine(base *Base) *Spatial {
	return &Spatial{Base: base, PosFormat: "aed", PosPath: "/source/pos/aed"}
}

// Wonder is the spatial WFS engine dialect. Grounded on
// renderer/wonder_renderer.py's Wonder class.
type Wonder struct {
	*Base
	PosFormat            string
	InterpolTime         float64
	LinkPositionAndAngle bool
	posPath              string
}

func NewWonder(base *Base, posFormat string) *Wonder {
	if posFormat == "" {
		posFormat = "xy"
	}
	return &Wonder{
		Base:                 base,
		PosFormat:            posFormat,
		InterpolTime:         base.updateInterval.Seconds(),
		LinkPositionAndAngle: true,
		posPath:              "/WONDER/source/position",
	}
}

func (w *Wonder) positionPath() string { return w.posPath }

func (w *Wonder) OnPositionChanged(srcIdx int, src *source.Source) {
	pos, err := src.GetPosition(w.PosFormat)
	if err != nil {
		return
	}
	w.AddUpdate(srcIdx, update.NewPosition(w.positionPath(), srcIdx, false, w.PosFormat, pos, w.InterpolTime))

	if w.LinkPositionAndAngle && src.GetAttribute("planewave") != 0 {
		w.emitAutoAngle(srcIdx, src)
	}
}

func (w *Wonder) emitAutoAngle(srcIdx int, src *source.Source) {
	azim, err := src.GetPosition("azim")
	if err != nil {
		return
	}
	u := update.NewPosition("/WONDER/source/angle", srcIdx, false, "azim", azim, w.InterpolTime)
	w.AddUpdate(srcIdx, u)
}

func (w *Wonder) OnAttributeChanged(srcIdx int, attrName string, src *source.Source) {
	value := src.GetAttribute(attrName)
	switch attrName {
	case "planewave":
		// historical encoding: the wire "type" attribute carries the
		// inverted boolean.
		u := update.NewAttribute("/WONDER/source/type", srcIdx, false, "type", false, value, true)
		w.AddUpdate(srcIdx, u)
		if value != 0 {
			w.emitAutoAngle(srcIdx, src)
		}
	case "doppler":
		u := update.NewAttribute("/WONDER/source/dopplerEffect", srcIdx, false, "doppler", false, value, false)
		w.AddUpdate(srcIdx, u)
	case "angle":
		u := update.NewAttribute("/WONDER/source/angle", srcIdx, false, "angle", false, value, false)
		u.PostArg = w.InterpolTime
		w.AddUpdate(srcIdx, u)
	}
}

// TWonder extends Wonder with room/activation setup on endpoint
// registration and optional state-file persistence. Grounded on
// renderer/wonder_renderer.py's TWonder class.
type TWonder struct {
	*Wonder
	NumSources  int
	RoomName    string
	RoomPolygon [][3]float64
	Multicast   bool
	StateFile   string
}

// NewTWonder refuses construction if no room polygon is configured,
// mirroring add_twonder's RendererException in the original.
func NewTWonder(base *Base, posFormat string, numSources int, roomName string, roomPolygon [][3]float64, multicast bool, stateFile string) (*TWonder, error) {
	if len(roomPolygon) == 0 {
		return nil, fmt.Errorf("twonder: room_polygon must be configured")
	}
	w := NewWonder(base, posFormat)
	if posFormat == "xyz" {
		w.posPath = "/WONDER/source/position3D"
	}
	t := &TWonder{
		Wonder:      w,
		NumSources:  numSources,
		RoomName:    roomName,
		RoomPolygon: roomPolygon,
		Multicast:   multicast,
		StateFile:   stateFile,
	}
	t.sendRoomInformation()
	if !multicast {
		t.persistEndpoints()
	}
	return t, nil
}

func (t *TWonder) sendRoomInformation() {
	maxSources := update.Message{Path: "/WONDER/global/maxNoSources", Values: []interface{}{t.NumSources}}
	t.broadcast(maxSources)

	for i := 0; i < t.NumSources; i++ {
		t.broadcast(update.Message{Path: "/WONDER/source/activate", Values: []interface{}{i}})
	}

	args := []interface{}{t.RoomName, len(t.RoomPolygon)}
	for _, p := range t.RoomPolygon {
		args = append(args, p[0], p[1], p[2])
	}
	t.broadcast(update.Message{Path: "/WONDER/global/renderpolygon", Values: args})
}

// broadcast sends a one-off control message directly (not through the
// per-source coalescing path — these are global, not per-source, updates).
func (t *TWonder) broadcast(msg update.Message) {
	t.send([]update.Message{msg})
}

// persistEndpoints appends each non-multicast endpoint to the TWonder
// state file, deduplicated, per spec.md §4.8.
func (t *TWonder) persistEndpoints() {
	if t.StateFile == "" {
		return
	}
	existing := map[string]bool{}
	if data, err := os.ReadFile(t.StateFile); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line != "" {
				existing[line] = true
			}
		}
	}

	var toAppend []string
	for _, ep := range t.endpoints {
		line := fmt.Sprintf("%s;%d", ep.hostname, ep.port)
		if !existing[line] {
			toAppend = append(toAppend, line)
			existing[line] = true
		}
	}
	if len(toAppend) == 0 {
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.StateFile), 0o755); err != nil {
		log.Printf("twonder: could not create state dir: %v", err)
		return
	}
	f, err := os.OpenFile(t.StateFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("twonder: could not open state file: %v", err)
		return
	}
	defer f.Close()
	for _, line := range toAppend {
		fmt.Fprintln(f, line)
	}
}

// ReadPersistedEndpoints loads hostname;port pairs from a TWonder state
// file, used at startup to rebind receivers seen in a previous run.
func ReadPersistedEndpoints(stateFile string) []EndpointConfig {
	data, err := os.ReadFile(stateFile)
	if err != nil {
		return nil
	}
	var out []EndpointConfig
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			continue
		}
		var port int
		if _, err := fmt.Sscanf(parts[1], "%d", &port); err != nil {
			continue
		}
		out = append(out, EndpointConfig{Hostname: parts[0], Port: port})
	}
	return out
}

// Audiorouter emits only gains and direct-sends (no position); renderer
// index 0 is the spatial send, index 1 (WFS) is handled by
// AudiorouterWFS instead, index 2 is the reverb send. Grounded on
// renderer/audiorouter_renderer.py.
type Audiorouter struct {
	*Base
}

func NewAudiorouter(base *Base) *Audiorouter { return &Audiorouter{Base: base} }

func (a *Audiorouter) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	switch rendererIdx {
	case 0:
		u := update.NewGain("/source/send/spatial", srcIdx, false, rendererIdx, true, value)
		a.AddUpdate(srcIdx, u)
	case 2:
		u := update.NewGain("/source/reverb/gain", srcIdx, false, rendererIdx, false, value)
		a.AddUpdate(srcIdx, u)
	}
}

func (a *Audiorouter) OnDirectSendChanged(srcIdx, sendIdx int, src *source.Source) {
	value, err := src.GetDirectSend(sendIdx)
	if err != nil {
		return
	}
	u := update.NewDirectSend("/source/send/direct", srcIdx, false, sendIdx, true, value)
	a.AddUpdate(srcIdx, u)
}

// AudiorouterWFS is the symmetric complement of Audiorouter: it reacts
// only to renderer index 1.
type AudiorouterWFS struct {
	*Base
}

func NewAudiorouterWFS(base *Base) *AudiorouterWFS { return &AudiorouterWFS{Base: base} }

func (a *AudiorouterWFS) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	if rendererIdx != 1 {
		return
	}
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	u := update.NewGain("/source/send/spatial", srcIdx, false, rendererIdx, true, value)
	a.AddUpdate(srcIdx, u)
}

// AudioMatrixRule is one configured routing rule for AudioMatrix.
type AudioMatrixRule struct {
	Path        string
	Type        string // "gain" or "position"
	RendererIdx int    // meaningful when Type == "gain"
	CoordFormat string // meaningful when Type == "position"
}

// AudioMatrix is the generic, fully-configurable dialect. Grounded on
// renderer/audiomatrix_renderer.py.
type AudioMatrix struct {
	*Base
	gainRules     map[int][]string
	positionRules []AudioMatrixRule
}

func NewAudioMatrix(base *Base, rules []AudioMatrixRule) *AudioMatrix {
	am := &AudioMatrix{Base: base, gainRules: map[int][]string{}}
	for _, r := range rules {
		switch r.Type {
		case "gain":
			am.gainRules[r.RendererIdx] = append(am.gainRules[r.RendererIdx], r.Path)
		case "position", "pos":
			if r.CoordFormat == "" {
				r.CoordFormat = "xyz"
			}
			am.positionRules = append(am.positionRules, r)
		}
	}
	return am
}

func (am *AudioMatrix) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	paths, ok := am.gainRules[rendererIdx]
	if !ok {
		return
	}
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	for _, path := range paths {
		u := update.NewGain(path, srcIdx, false, rendererIdx, false, value)
		am.AddUpdate(srcIdx, u)
	}
}

func (am *AudioMatrix) OnPositionChanged(srcIdx int, src *source.Source) {
	for _, rule := range am.positionRules {
		pos, err := src.GetPosition(rule.CoordFormat)
		if err != nil {
			continue
		}
		u := update.NewPosition(rule.Path, srcIdx, false, rule.CoordFormat, pos, nil)
		am.AddUpdate(srcIdx, u)
	}
}

// SeamlessPlugin uses 1-based source indices in its argument list.
// Grounded on renderer/seamlessplugin_renderer.py.
type SeamlessPlugin struct {
	*Base
	PosFormat string
}

func NewSeamlessPlugin(base *Base, posFormat string) *SeamlessPlugin {
	if posFormat == "" {
		posFormat = "xyz"
	}
	return &SeamlessPlugin{Base: base, PosFormat: posFormat}
}

func (sp *SeamlessPlugin) OnPositionChanged(srcIdx int, src *source.Source) {
	pos, err := src.GetPosition(sp.PosFormat)
	if err != nil {
		return
	}
	u := update.NewPosition(fmt.Sprintf("/source/pos/%s", sp.PosFormat), srcIdx+1, true, sp.PosFormat, pos, nil)
	sp.AddUpdate(srcIdx, u)
}

func (sp *SeamlessPlugin) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	u := update.NewGain("/send/gain", srcIdx+1, true, rendererIdx, true, value)
	sp.AddUpdate(srcIdx, u)
}
