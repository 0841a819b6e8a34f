package receiver

import (
	"fmt"
	"sync"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/source"
	"github.com/tu-studio/osc-kreuz/internal/update"
)

var namedRenderUnits = map[string]bool{"ambi": true, "wfs": true, "reverb": true}

// ViewClient is the dynamically-subscribed dialect maintained by the
// heartbeat watchdog in spec.md §4.8. Grounded on
// renderer/viewclient_renderer.py's ViewClient class.
type ViewClient struct {
	*Base

	Alias        string
	PosFormat    string
	IndexAsValue bool
	SettingsPort int

	positionPathWithIndex []string
	gainPathWithIndex     [][]string

	mu          sync.Mutex
	missedPongs int
	stopped     bool
	timer       *time.Timer
	onDead      func(alias string)
	onMiss      func(alias string)
}

// SetMissHook installs a callback invoked every time a heartbeat ping goes
// unanswered, before the 6-miss deregistration threshold is reached.
func (vc *ViewClient) SetMissHook(f func(alias string)) { vc.onMiss = f }

// NewViewClient constructs a subscribed view-client. renderUnitNames is the
// configured render_units list, in renderer-index order.
func NewViewClient(base *Base, alias, posFormat string, indexAsValue bool, settingsPort int, numSources int, renderUnitNames []string, onDead func(alias string)) *ViewClient {
	vc := &ViewClient{
		Base:         base,
		Alias:        alias,
		PosFormat:    posFormat,
		IndexAsValue: indexAsValue,
		SettingsPort: settingsPort,
		onDead:       onDead,
	}

	vc.positionPathWithIndex = make([]string, numSources)
	vc.gainPathWithIndex = make([][]string, numSources)

	useNamedUnits := len(renderUnitNames) > 0
	for _, name := range renderUnitNames {
		if !namedRenderUnits[name] {
			useNamedUnits = false
			break
		}
	}

	for i := 0; i < numSources; i++ {
		vc.positionPathWithIndex[i] = fmt.Sprintf("/source/%d/%s", i+1, posFormat)
		vc.gainPathWithIndex[i] = make([]string, len(renderUnitNames))
		for r, name := range renderUnitNames {
			if useNamedUnits {
				vc.gainPathWithIndex[i][r] = fmt.Sprintf("/source/%d/%s", i+1, name)
			} else {
				vc.gainPathWithIndex[i][r] = fmt.Sprintf("/source/%d/send/%d", i+1, r)
			}
		}
	}

	return vc
}

// QualifiedName returns the base name qualified with the subscriber's
// alias, as my_type() does in the implementation this is grounded on.
// Debug-tap paths use the unqualified Base.Name, not this name.
func (vc *ViewClient) QualifiedName() string { return fmt.Sprintf("%s_%s", vc.Base.Name, vc.Alias) }

func (vc *ViewClient) OnPositionChanged(srcIdx int, src *source.Source) {
	pos, err := src.GetPosition(vc.PosFormat)
	if err != nil {
		return
	}
	var u *update.Update
	if vc.IndexAsValue {
		u = update.NewPosition(vc.positionPathWithIndex[srcIdx], srcIdx, false, vc.PosFormat, pos, nil)
	} else {
		u = update.NewPosition(fmt.Sprintf("/source/%s", vc.PosFormat), srcIdx, true, vc.PosFormat, pos, nil)
	}
	vc.AddUpdate(srcIdx, u)
}

func (vc *ViewClient) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	var u *update.Update
	if vc.IndexAsValue {
		if rendererIdx >= len(vc.gainPathWithIndex[srcIdx]) {
			return
		}
		path := vc.gainPathWithIndex[srcIdx][rendererIdx]
		u = update.NewGain(path, srcIdx, false, rendererIdx, false, value)
	} else {
		u = update.NewGain("/source/send", srcIdx, true, rendererIdx, true, value)
	}
	vc.AddUpdate(srcIdx, u)
}

func (vc *ViewClient) OnDirectSendChanged(srcIdx, sendIdx int, src *source.Source) {
	value, err := src.GetDirectSend(sendIdx)
	if err != nil {
		return
	}
	u := update.NewDirectSend("/source/direct", srcIdx, true, sendIdx, true, value)
	vc.AddUpdate(srcIdx, u)
}

func (vc *ViewClient) OnAttributeChanged(srcIdx int, attrName string, src *source.Source) {
	value := src.GetAttribute(attrName)
	u := update.NewAttribute("/source/attribute", srcIdx, true, attrName, true, value, false)
	vc.AddUpdate(srcIdx, u)
}

// sendPing transmits the heartbeat ping to the subscriber's endpoint,
// carrying the settings port so the subscriber knows where to pong.
func (vc *ViewClient) sendPing() {
	vc.send([]update.Message{{Path: "/oscrouter/ping", Values: []interface{}{vc.SettingsPort}}})
}

// StartWatchdog begins the 2-second repeating liveness timer described in
// spec.md §4.8.
func (vc *ViewClient) StartWatchdog() {
	vc.scheduleTick()
}

func (vc *ViewClient) scheduleTick() {
	vc.mu.Lock()
	if vc.stopped {
		vc.mu.Unlock()
		return
	}
	vc.timer = time.AfterFunc(2*time.Second, vc.tick)
	vc.mu.Unlock()
}

func (vc *ViewClient) tick() {
	vc.mu.Lock()
	if vc.stopped {
		vc.mu.Unlock()
		return
	}
	vc.mu.Unlock()

	vc.sendPing()

	vc.mu.Lock()
	vc.missedPongs++
	dead := vc.missedPongs >= 6
	if dead {
		vc.stopped = true
	}
	vc.mu.Unlock()

	if vc.onMiss != nil {
		vc.onMiss(vc.Alias)
	}

	if dead {
		if vc.onDead != nil {
			vc.onDead(vc.Alias)
		}
		return
	}
	vc.scheduleTick()
}

// ReceivedPong resets the missed-pong counter, keeping this subscription
// alive.
func (vc *ViewClient) ReceivedPong() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.missedPongs = 0
}

// Stop cancels the watchdog timer; used on unsubscribe and shutdown.
func (vc *ViewClient) Stop() {
	vc.mu.Lock()
	vc.stopped = true
	t := vc.timer
	vc.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}
