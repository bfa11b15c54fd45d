package codebook

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/dbehnke/sigcore/internal/tables"
)

func writePhaseFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "phase.kb")

	records := [][]byte{
		{3, 10, 20, 30},
		{2, 5, 6},
	}
	var content []byte
	offsets := make([]uint32, len(records))
	for i, r := range records {
		offsets[i] = uint32(len(content))
		content = append(content, r...)
	}

	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(len(offsets)))
	for _, off := range offsets {
		o := make([]byte, 4)
		binary.LittleEndian.PutUint32(o, off)
		buf = append(buf, o...)
	}
	buf = append(buf, content...)

	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeMeanFixture(t *testing.T, dir, name string, scaleExp int8, width int, records [][]int16) string {
	t.Helper()
	path := filepath.Join(dir, name)
	buf := []byte{byte(scaleExp)}
	for _, rec := range records {
		for _, v := range rec {
			b := make([]byte, 2)
			binary.LittleEndian.PutUint16(b, uint16(v))
			buf = append(buf, b...)
		}
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}
	_ = width
	return path
}

func TestOpenAndLookup(t *testing.T) {
	dir := t.TempDir()
	phasePath := writePhaseFixture(t, dir)
	melPath := writeMeanFixture(t, dir, "mel.kb", 5, tables.CepOrder, [][]int16{
		append([]int16{100, 200}, make([]int16, tables.CepOrder-2)...),
	})
	f0Path := writeMeanFixture(t, dir, "f0.kb", 3, 1, [][]int16{{500}})

	r, err := Open(Paths{Phase: phasePath, MelCepstrum: melPath, LogF0: f0Path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	vec, n, err := r.PhaseVector(0)
	if err != nil {
		t.Fatalf("PhaseVector(0): %v", err)
	}
	if n != 3 || vec[0] != 10 || vec[1] != 20 || vec[2] != 30 {
		t.Fatalf("PhaseVector(0) = %v, n=%d", vec[:n], n)
	}
	for i := n; i < tables.PhaseOrder; i++ {
		if vec[i] != 0 {
			t.Fatalf("expected zero-filled tail at %d, got %d", i, vec[i])
		}
	}

	coeffs, exp, err := r.MelCepstrumMean(0)
	if err != nil {
		t.Fatalf("MelCepstrumMean(0): %v", err)
	}
	if exp != 5 || coeffs[0] != 100 || coeffs[1] != 200 {
		t.Fatalf("MelCepstrumMean(0) = %v exp=%d", coeffs, exp)
	}

	mean, exp, err := r.LogF0Mean(0)
	if err != nil {
		t.Fatalf("LogF0Mean(0): %v", err)
	}
	if mean != 500 || exp != 3 {
		t.Fatalf("LogF0Mean(0) = %d exp=%d", mean, exp)
	}
}

func TestOpenMissingResourceFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(Paths{
		Phase:       filepath.Join(dir, "missing-phase.kb"),
		MelCepstrum: filepath.Join(dir, "missing-mel.kb"),
		LogF0:       filepath.Join(dir, "missing-f0.kb"),
	})
	if err == nil {
		t.Fatal("expected error for missing resources")
	}
}

func TestPhaseVectorOutOfRange(t *testing.T) {
	dir := t.TempDir()
	phasePath := writePhaseFixture(t, dir)
	melPath := writeMeanFixture(t, dir, "mel.kb", 0, tables.CepOrder, nil)
	f0Path := writeMeanFixture(t, dir, "f0.kb", 0, 1, nil)

	r, err := Open(Paths{Phase: phasePath, MelCepstrum: melPath, LogF0: f0Path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := r.PhaseVector(999); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
