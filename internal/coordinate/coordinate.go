// Package coordinate implements the three coordinate representations used to
// describe a sound source's position (Cartesian, polar degrees, polar
// radians), their mutual conversion, and the small format-string grammar
// ("xyz", "aed", "azimrad", ...) inbound OSC paths use to select one.
//
// Conversion between families uses elevation measured from the equator
// (x = d*cos(e)*cos(a); y = d*cos(e)*sin(a); z = d*sin(e)). Elevation is
// wrapped with the same +/-180 degree formula as azimuth rather than
// reflected across the poles; this is the original's observed behaviour and
// is preserved rather than "fixed".
package coordinate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// System identifies which of the three coordinate families a Coordinate
// stores its components in.
type System int

const (
	Cartesian System = iota
	Polar
	PolarRadians
)

func (s System) String() string {
	switch s {
	case Cartesian:
		return "cartesian"
	case Polar:
		return "polar"
	case PolarRadians:
		return "polarrad"
	default:
		return "unknown"
	}
}

// Key names a single scalar component of a coordinate.
type Key int

const (
	KeyX Key = iota
	KeyY
	KeyZ
	KeyA
	KeyE
	KeyD
)

func (k Key) String() string {
	switch k {
	case KeyX:
		return "x"
	case KeyY:
		return "y"
	case KeyZ:
		return "z"
	case KeyA:
		return "a"
	case KeyE:
		return "e"
	case KeyD:
		return "d"
	default:
		return "?"
	}
}

// scalable returns true for components that a scaling factor should be
// applied to: linear components (x, y, z and distance), never angles.
func scalable(k Key) bool {
	switch k {
	case KeyX, KeyY, KeyZ, KeyD:
		return true
	default:
		return false
	}
}

var systemKeys = map[System][]Key{
	Cartesian:    {KeyX, KeyY, KeyZ},
	Polar:        {KeyA, KeyE, KeyD},
	PolarRadians: {KeyA, KeyE, KeyD},
}

// InvalidFormatError is returned by ParseFormat for an unrecognised format
// string.
type InvalidFormatError struct {
	Format string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid coordinate format: %q", e.Format)
}

var longAliases = map[string]Key{
	"azimuth":  KeyA,
	"azim":     KeyA,
	"elevation": KeyE,
	"elev":     KeyE,
	"distance": KeyD,
	"dist":     KeyD,
}

const radiansSuffix = "rad"

// formatCacheEntry is the cached result of parsing a format string.
type formatCacheEntry struct {
	system System
	keys   []Key
}

// formatCache memoises ParseFormat results; format strings are drawn from a
// small, fixed vocabulary so an unbounded map is fine for the process
// lifetime (this mirrors the Python implementation's @lru_cache on
// parse_coordinate_format).
var formatCache = map[string]formatCacheEntry{}

// ParseFormat parses an inbound coordinate-format string such as "xyz",
// "ae", "azimrad", or "dist" into the coordinate system it selects and the
// ordered list of component keys it addresses.
func ParseFormat(format string) (System, []Key, error) {
	if cached, ok := formatCache[format]; ok {
		return cached.system, cached.keys, nil
	}

	system, keys, err := parseFormatUncached(format)
	if err != nil {
		return 0, nil, err
	}
	formatCache[format] = formatCacheEntry{system: system, keys: keys}
	return system, keys, nil
}

func parseFormatUncached(format string) (System, []Key, error) {
	if format == "" {
		return 0, nil, &InvalidFormatError{Format: format}
	}

	rest := format
	system := Cartesian
	if len(rest) > len(radiansSuffix) && rest[len(rest)-len(radiansSuffix):] == radiansSuffix {
		rest = rest[:len(rest)-len(radiansSuffix)]
		system = PolarRadians
	} else if isPolarLeadingRune(rest[0]) {
		system = Polar
	}

	var keys []Key

	if system == Polar || system == PolarRadians {
		if key, ok := longAliases[rest]; ok {
			keys = append(keys, key)
			rest = ""
		}
	}

	for _, r := range rest {
		key, ok := keyFromRune(r)
		if !ok {
			return 0, nil, &InvalidFormatError{Format: format}
		}
		if !keyAllowed(system, key) {
			return 0, nil, &InvalidFormatError{Format: format}
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return 0, nil, &InvalidFormatError{Format: format}
	}

	return system, keys, nil
}

func isPolarLeadingRune(r byte) bool {
	switch r {
	case 'a', 'e', 'd':
		return true
	default:
		return false
	}
}

func keyFromRune(r rune) (Key, bool) {
	switch r {
	case 'x':
		return KeyX, true
	case 'y':
		return KeyY, true
	case 'z':
		return KeyZ, true
	case 'a':
		return KeyA, true
	case 'e':
		return KeyE, true
	case 'd':
		return KeyD, true
	default:
		return 0, false
	}
}

func keyAllowed(system System, key Key) bool {
	for _, allowed := range systemKeys[system] {
		if allowed == key {
			return true
		}
	}
	return false
}

// Coordinate holds a single position in one of the three representations.
// It is not safe for concurrent use without an external lock; callers
// (internal/source) serialise access per source.
type Coordinate struct {
	system System
	values map[Key]float64
}

// New constructs a Coordinate for the given system with all of its
// components set to values, in the canonical order for that system
// (x,y,z or a,e,d).
func New(system System, values ...float64) (*Coordinate, error) {
	keys := systemKeys[system]
	if len(values) != len(keys) {
		return nil, fmt.Errorf("coordinate: expected %d values for %s, got %d", len(keys), system, len(values))
	}
	c := &Coordinate{system: system, values: make(map[Key]float64, len(keys))}
	for i, k := range keys {
		c.values[k] = values[i]
	}
	c.wrap()
	return c, nil
}

// NewCartesian constructs a Cartesian coordinate (x, y, z).
func NewCartesian(x, y, z float64) *Coordinate {
	c, _ := New(Cartesian, x, y, z)
	return c
}

// NewPolar constructs a polar-degrees coordinate (azimuth, elevation, distance).
func NewPolar(a, e, d float64) *Coordinate {
	c, _ := New(Polar, a, e, d)
	return c
}

// NewPolarRad constructs a polar-radians coordinate (azimuth, elevation, distance).
func NewPolarRad(a, e, d float64) *Coordinate {
	c, _ := New(PolarRadians, a, e, d)
	return c
}

// System returns the representation this Coordinate is stored in.
func (c *Coordinate) System() System { return c.system }

// SetAll overwrites every component, in the canonical order for this
// Coordinate's system.
func (c *Coordinate) SetAll(values ...float64) error {
	keys := systemKeys[c.system]
	if len(values) != len(keys) {
		return fmt.Errorf("coordinate: expected %d values, got %d", len(keys), len(values))
	}
	for i, k := range keys {
		c.values[k] = values[i]
	}
	c.wrap()
	return nil
}

// SetKeys writes the given components (multiplying linear ones by scale),
// wraps angles, and reports whether any stored value changed by exact
// equality.
func (c *Coordinate) SetKeys(keys []Key, values []float64, scale float64) (bool, error) {
	if len(keys) != len(values) {
		return false, fmt.Errorf("coordinate: keys/values length mismatch")
	}
	if scale == 0 {
		scale = 1.0
	}
	before := c.Get(keys)
	written := false
	for i, k := range keys {
		if !keyAllowed(c.system, k) {
			return false, fmt.Errorf("coordinate: key %s not valid for system %s", k, c.system)
		}
		v := values[i]
		if scalable(k) {
			v *= scale
		}
		if c.values[k] != v {
			c.values[k] = v
			written = true
		}
	}
	if !written {
		return false, nil
	}
	c.wrap()
	for i, k := range keys {
		if c.values[k] != before[i] {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the current value of the requested components, in the order
// given.
func (c *Coordinate) Get(keys []Key) []float64 {
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = c.values[k]
	}
	return out
}

// GetAll returns every component of this Coordinate in canonical order.
func (c *Coordinate) GetAll() []float64 {
	return c.Get(systemKeys[c.system])
}

// wrap re-applies the per-system validation (angle wrapping) after a write.
// Elevation is wrapped with the same formula as azimuth (not reflected
// across +/-90 degrees) per the preserved historical behaviour documented in
// spec.md §4.1 and §9.
func (c *Coordinate) wrap() {
	switch c.system {
	case Polar:
		c.values[KeyA] = wrap(c.values[KeyA], 360)
		c.values[KeyE] = wrap(c.values[KeyE], 360)
	case PolarRadians:
		c.values[KeyA] = wrap(c.values[KeyA], 2*math.Pi)
		c.values[KeyE] = wrap(c.values[KeyE], 2*math.Pi)
	}
}

// wrap maps v into [-period/2, period/2) via ((v + period/2) mod period) - period/2.
func wrap(v, period float64) float64 {
	half := period / 2
	m := math.Mod(v+half, period)
	if m < 0 {
		m += period
	}
	return m - half
}

// ConvertTo returns this Coordinate's value expressed in the target system,
// without mutating the receiver. Conversion between families uses the
// equator-referenced spherical transform from spec.md §4.1:
//
//	x = d*cos(e)*cos(a); y = d*cos(e)*sin(a); z = d*sin(e)
func (c *Coordinate) ConvertTo(target System) ([3]float64, error) {
	if target == c.system {
		all := c.GetAll()
		return [3]float64{all[0], all[1], all[2]}, nil
	}

	switch c.system {
	case Cartesian:
		return c.cartesianTo(target)
	case Polar:
		return c.polarTo(target, false)
	case PolarRadians:
		return c.polarTo(target, true)
	default:
		return [3]float64{}, fmt.Errorf("coordinate: unknown system %v", c.system)
	}
}

func (c *Coordinate) cartesianTo(target System) ([3]float64, error) {
	v := r3.Vec{X: c.values[KeyX], Y: c.values[KeyY], Z: c.values[KeyZ]}
	d := r3.Norm(v)
	a := math.Atan2(v.Y, v.X)
	var e float64
	if d != 0 {
		e = math.Asin(v.Z / d)
	}
	switch target {
	case Polar:
		return [3]float64{rad2deg(a), rad2deg(e), d}, nil
	case PolarRadians:
		return [3]float64{a, e, d}, nil
	default:
		return [3]float64{}, fmt.Errorf("coordinate: invalid conversion target %v", target)
	}
}

func (c *Coordinate) polarTo(target System, inputIsRadians bool) ([3]float64, error) {
	a, e, d := c.values[KeyA], c.values[KeyE], c.values[KeyD]
	if !inputIsRadians {
		switch target {
		case PolarRadians:
			return [3]float64{deg2rad(a), deg2rad(e), d}, nil
		case Cartesian:
			return polarToCartesian(deg2rad(a), deg2rad(e), d), nil
		default:
			return [3]float64{}, fmt.Errorf("coordinate: invalid conversion target %v", target)
		}
	}
	switch target {
	case Polar:
		return [3]float64{rad2deg(a), rad2deg(e), d}, nil
	case Cartesian:
		return polarToCartesian(a, e, d), nil
	default:
		return [3]float64{}, fmt.Errorf("coordinate: invalid conversion target %v", target)
	}
}

func polarToCartesian(aRad, eRad, d float64) [3]float64 {
	v := r3.Scale(d, r3.Vec{
		X: math.Cos(eRad) * math.Cos(aRad),
		Y: math.Cos(eRad) * math.Sin(aRad),
		Z: math.Sin(eRad),
	})
	return [3]float64{v.X, v.Y, v.Z}
}

func deg2rad(v float64) float64 { return v * math.Pi / 180 }
func rad2deg(v float64) float64 { return v * 180 / math.Pi }

// AllFormats lists every coordinate-format string ParseFormat accepts; used
// by the OSC path expander to bind every known position format.
func AllFormats() []string {
	var out []string
	for _, sys := range []System{Cartesian, Polar, PolarRadians} {
		suffix := ""
		if sys == PolarRadians {
			suffix = radiansSuffix
		}
		keys := systemKeys[sys]
		for _, combo := range nonEmptySubsets(keys) {
			s := ""
			for _, k := range combo {
				s += k.String()
			}
			out = append(out, s+suffix)
		}
	}
	for alias := range longAliases {
		out = append(out, alias)
		out = append(out, alias+radiansSuffix)
	}
	return out
}

func nonEmptySubsets(keys []Key) [][]Key {
	var out [][]Key
	n := len(keys)
	for mask := 1; mask < (1 << n); mask++ {
		var subset []Key
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, keys[i])
			}
		}
		out = append(out, subset)
	}
	return out
}
