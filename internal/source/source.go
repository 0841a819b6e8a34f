// Package source implements the canonical per-source state: position in
// three mutually-consistent representations, per-renderer and per-direct-send
// gain vectors, a small attribute bundle, and the UI-vs-automation
// precedence arbitration ("ui_lock") described in spec.md §4.2.
//
// This mirrors original_source/src/osc_kreuz/soundobject.py's SoundObject,
// generalised from its Python class-level globals into an explicit Params
// struct passed at construction (see internal/engine's EngineContext).
package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/tu-studio/osc-kreuz/internal/coordinate"
)

// Params holds the process-wide settings a Source needs, set once at
// startup from configuration. It replaces the Python implementation's
// class-level globalConfig.
type Params struct {
	NumRenderers            int
	NumDirectSends          int
	MaxGain                 float64
	SendChangesOnly         bool
	DataPortTimeout         time.Duration
	CoordinateScalingFactor float64
	MinDist                 float64
}

// lockState is the ui_lock for a single channel: the timestamp of the last
// from_ui write and whether automation writes are currently blocked.
type lockState struct {
	lastUI  time.Time
	blocked bool
}

// shouldProcess implements the ui_lock arbitration in spec.md §4.2. It must
// be called with the Source's mutex held.
func shouldProcess(l *lockState, fromUI bool, timeout time.Duration) bool {
	if fromUI {
		l.blocked = true
		l.lastUI = time.Now()
		return true
	}
	if timeout == 0 {
		return true
	}
	if l.blocked {
		if time.Since(l.lastUI) >= timeout {
			l.blocked = false
			return true
		}
		return false
	}
	return true
}

// Source is one logical sound object, addressed by a fixed 1-based index.
type Source struct {
	mu    sync.Mutex
	index int
	params *Params

	posCart     *coordinate.Coordinate
	posPolar    *coordinate.Coordinate
	posPolarRad *coordinate.Coordinate
	positionLock lockState

	gain       []float64
	gainLocks  []lockState

	directSend      []float64
	directSendLocks []lockState

	attributes    map[string]float64
	attributeLock lockState
}

// New constructs a Source at rest: position at the origin, all gains and
// attributes at zero.
func New(index int, params *Params) *Source {
	s := &Source{
		index:           index,
		params:          params,
		posCart:         coordinate.NewCartesian(0, 0, 0),
		posPolar:        coordinate.NewPolar(0, 0, 0),
		posPolarRad:     coordinate.NewPolarRad(0, 0, 0),
		gain:            make([]float64, params.NumRenderers),
		gainLocks:       make([]lockState, params.NumRenderers),
		directSend:      make([]float64, params.NumDirectSends),
		directSendLocks: make([]lockState, params.NumDirectSends),
		attributes:      make(map[string]float64),
	}
	return s
}

// Index returns this source's 1-based identity.
func (s *Source) Index() int { return s.index }

func (s *Source) coordFor(system coordinate.System) *coordinate.Coordinate {
	switch system {
	case coordinate.Polar:
		return s.posPolar
	case coordinate.PolarRadians:
		return s.posPolarRad
	default:
		return s.posCart
	}
}

// SetPosition writes the components named by fmtStr (e.g. "xyz", "ae",
// "azimrad") and reports whether the change should be notified downstream.
func (s *Source) SetPosition(fmtStr string, values []float64, fromUI bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !shouldProcess(&s.positionLock, fromUI, s.params.DataPortTimeout) {
		return false, nil
	}

	system, keys, err := coordinate.ParseFormat(fmtStr)
	if err != nil {
		return false, err
	}
	if len(keys) != len(values) {
		return false, fmt.Errorf("source: format %q expects %d values, got %d", fmtStr, len(keys), len(values))
	}

	target := s.coordFor(system)
	changed, err := target.SetKeys(keys, values, s.params.CoordinateScalingFactor)
	if err != nil {
		return false, err
	}

	// min_dist floor applies only on the polar (aed) input path, never on
	// cartesian writes — an asymmetry preserved verbatim from the source
	// this was distilled from (spec.md §9 open question).
	if s.params.MinDist > 0 && system != coordinate.Cartesian {
		for _, k := range keys {
			if k != coordinate.KeyD {
				continue
			}
			if d := target.Get([]coordinate.Key{coordinate.KeyD})[0]; d < s.params.MinDist {
				if c, _ := target.SetKeys([]coordinate.Key{coordinate.KeyD}, []float64{s.params.MinDist}, 1.0); c {
					changed = true
				}
			}
		}
	}

	s.resyncPositionFrom(system)

	if s.params.SendChangesOnly {
		return changed, nil
	}
	return true, nil
}

// resyncPositionFrom recomputes the two non-canonical position stores from
// the one just written, keeping all three representations consistent per
// the invariant in spec.md §3.
func (s *Source) resyncPositionFrom(system coordinate.System) {
	source := s.coordFor(system)
	for _, sys := range []coordinate.System{coordinate.Cartesian, coordinate.Polar, coordinate.PolarRadians} {
		if sys == system {
			continue
		}
		converted, err := source.ConvertTo(sys)
		if err != nil {
			continue
		}
		s.coordFor(sys).SetAll(converted[0], converted[1], converted[2])
	}
}

// GetPosition reads the components named by fmtStr from whichever
// representation natively stores them.
func (s *Source) GetPosition(fmtStr string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	system, keys, err := coordinate.ParseFormat(fmtStr)
	if err != nil {
		return nil, err
	}
	return s.coordFor(system).Get(keys), nil
}

func clampGain(v, maxGain float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxGain {
		return maxGain
	}
	return v
}

// SetGain writes the per-renderer gain at rendererIdx.
func (s *Source) SetGain(rendererIdx int, value float64, fromUI bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rendererIdx < 0 || rendererIdx >= len(s.gain) {
		return false, fmt.Errorf("source: renderer index %d out of range", rendererIdx)
	}
	if !shouldProcess(&s.gainLocks[rendererIdx], fromUI, s.params.DataPortTimeout) {
		return false, nil
	}

	v := clampGain(value, s.params.MaxGain)
	changed := s.gain[rendererIdx] != v
	s.gain[rendererIdx] = v

	if s.params.SendChangesOnly {
		return changed, nil
	}
	return true, nil
}

// GetGain reads the per-renderer gain at rendererIdx.
func (s *Source) GetGain(rendererIdx int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rendererIdx < 0 || rendererIdx >= len(s.gain) {
		return 0, fmt.Errorf("source: renderer index %d out of range", rendererIdx)
	}
	return s.gain[rendererIdx], nil
}

// SetDirectSend writes the per-send direct-send gain at sendIdx.
func (s *Source) SetDirectSend(sendIdx int, value float64, fromUI bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sendIdx < 0 || sendIdx >= len(s.directSend) {
		return false, fmt.Errorf("source: direct-send index %d out of range", sendIdx)
	}
	if !shouldProcess(&s.directSendLocks[sendIdx], fromUI, s.params.DataPortTimeout) {
		return false, nil
	}

	v := clampGain(value, s.params.MaxGain)
	changed := s.directSend[sendIdx] != v
	s.directSend[sendIdx] = v

	if s.params.SendChangesOnly {
		return changed, nil
	}
	return true, nil
}

// GetDirectSend reads the per-send direct-send gain at sendIdx.
func (s *Source) GetDirectSend(sendIdx int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sendIdx < 0 || sendIdx >= len(s.directSend) {
		return 0, fmt.Errorf("source: direct-send index %d out of range", sendIdx)
	}
	return s.directSend[sendIdx], nil
}

// SetAttribute writes a named attribute (planewave, doppler, angle, ...).
// All attributes share a single ui_lock, matching the bundled
// "attribute" blocking dict in the implementation this was grounded on.
func (s *Source) SetAttribute(name string, value float64, fromUI bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !shouldProcess(&s.attributeLock, fromUI, s.params.DataPortTimeout) {
		return false, nil
	}

	old, existed := s.attributes[name]
	changed := !existed || old != value
	s.attributes[name] = value

	if s.params.SendChangesOnly {
		return changed, nil
	}
	return true, nil
}

// GetAttribute reads a named attribute; it returns 0 if never set.
func (s *Source) GetAttribute(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attributes[name]
}
