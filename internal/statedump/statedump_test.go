package statedump

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

func TestWriteOnceProducesDecodableSnapshot(t *testing.T) {
	params := &source.Params{NumRenderers: 2, NumDirectSends: 1, MaxGain: 1, CoordinateScalingFactor: 1}
	sources := []*source.Source{source.New(1, params)}
	sources[0].SetPosition("xyz", []float64{1, 2, 3}, false)

	dir := t.TempDir()
	d := NewDumper(sources, dir, time.Hour, 2, 1)
	d.writeOnce()

	path := filepath.Join(dir, "dump.json.zst")
	compressed, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(raw) == 0 {
		t.Errorf("decompressed dump is empty")
	}
}

func TestRunNoopWhenUnconfigured(t *testing.T) {
	d := NewDumper(nil, "", 0, 0, 0)
	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run with interval=0 should return immediately")
	}
}
