// Package statedump periodically writes a compressed snapshot of canonical
// source state to disk, purely as an operator debugging aid (inspecting a
// dump after the fact beats trying to reproduce a transient bug live).
//
// Grounded on pcm_binary.go's use of klauspost/compress/zstd: that file
// compresses outbound PCM audio frames for bandwidth; here the same encoder
// compresses the much smaller but still worth-shrinking JSON state dump
// before it hits the state directory.
package statedump

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

// sourceDump is the on-disk shape of one source's canonical state.
type sourceDump struct {
	Index      int                `json:"index"`
	Position   []float64          `json:"position"`
	Gain       []float64          `json:"gain"`
	DirectSend []float64          `json:"direct_send"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
}

// Dumper periodically snapshots a fixed source array to a zstd-compressed
// JSON file in Dir.
type Dumper struct {
	Sources      []*source.Source
	Dir          string
	Interval     time.Duration
	NumRenderers int
	NumSends     int

	encoder *zstd.Encoder
	stop    chan struct{}
}

// NewDumper constructs a Dumper; it never returns nil. Run returns at once
// without writing anything if interval is non-positive, dir is empty, or
// the zstd encoder could not be constructed.
func NewDumper(sources []*source.Source, dir string, interval time.Duration, numRenderers, numSends int) *Dumper {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		log.Printf("statedump: could not construct zstd encoder: %v", err)
	}
	return &Dumper{
		Sources:      sources,
		Dir:          dir,
		Interval:     interval,
		NumRenderers: numRenderers,
		NumSends:     numSends,
		encoder:      enc,
		stop:         make(chan struct{}),
	}
}

// Run blocks, writing a snapshot every Interval until Stop is called.
func (d *Dumper) Run() {
	if d.Interval <= 0 || d.Dir == "" || d.encoder == nil {
		return
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		log.Printf("statedump: could not create %s: %v", d.Dir, err)
		return
	}

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.writeOnce()
		}
	}
}

// Stop ends the dump loop.
func (d *Dumper) Stop() { close(d.stop) }

func (d *Dumper) writeOnce() {
	dumps := make([]sourceDump, len(d.Sources))
	for i, s := range d.Sources {
		sd := sourceDump{Index: s.Index()}
		if pos, err := s.GetPosition("xyz"); err == nil {
			sd.Position = pos
		}
		sd.Gain = make([]float64, d.NumRenderers)
		for r := 0; r < d.NumRenderers; r++ {
			sd.Gain[r], _ = s.GetGain(r)
		}
		sd.DirectSend = make([]float64, d.NumSends)
		for sendIdx := 0; sendIdx < d.NumSends; sendIdx++ {
			sd.DirectSend[sendIdx], _ = s.GetDirectSend(sendIdx)
		}
		dumps[i] = sd
	}

	payload, err := json.Marshal(dumps)
	if err != nil {
		log.Printf("statedump: marshal failed: %v", err)
		return
	}
	compressed := d.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))

	path := filepath.Join(d.Dir, "dump.json.zst")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		log.Printf("statedump: write failed: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Printf("statedump: rename failed: %v", err)
	}
}
