package oscpath

import "testing"

func TestExpandAliasesKnownGroup(t *testing.T) {
	got := ExpandAliases("ambi")
	want := []string{"hoa", "ambi", "ambisonics"}
	if len(got) != len(want) {
		t.Fatalf("ExpandAliases(ambi) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExpandAliases(ambi)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandAliasesUnknownValue(t *testing.T) {
	got := ExpandAliases("doppler")
	if len(got) != 1 || got[0] != "doppler" {
		t.Errorf("ExpandAliases(doppler) = %v, want [doppler]", got)
	}
}

func TestExpandBaseContainsCanonicalPath(t *testing.T) {
	paths := Expand(Position, "xyz", nil)
	found := false
	for _, p := range paths {
		if p == "/source/xyz" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expand(Position, xyz, nil) = %v, missing /source/xyz", paths)
	}
}

func TestExpandExtendedSubstitutesIndex(t *testing.T) {
	idx := 3
	paths := Expand(Gain, "ambi", &idx)
	found := false
	for _, p := range paths {
		if p == "/source/3/send/hoa" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expand(Gain, ambi, &3) = %v, missing /source/3/send/hoa", paths)
	}
}

func TestExpandExpandsEveryAliasInGroup(t *testing.T) {
	paths := Expand(Gain, "wfs", nil)
	wantAny := map[string]bool{"/source/send/wfs": false, "/source/send/wavefieldsynthesis": false}
	for _, p := range paths {
		if _, ok := wantAny[p]; ok {
			wantAny[p] = true
		}
	}
	for p, found := range wantAny {
		if !found {
			t.Errorf("Expand(Gain, wfs, nil) missing alias expansion %q", p)
		}
	}
}
