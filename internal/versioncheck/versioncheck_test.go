package versioncheck

import "testing"

func TestCheckEmptyMinimumAlwaysPasses(t *testing.T) {
	if err := Check("0.0.1", ""); err != nil {
		t.Errorf("Check with no configured minimum should never fail: %v", err)
	}
}

func TestCheckBuildTooOld(t *testing.T) {
	if err := Check("1.0.0", "1.2.0"); err == nil {
		t.Errorf("Check(1.0.0, min=1.2.0) should fail")
	}
}

func TestCheckBuildNewEnough(t *testing.T) {
	if err := Check("1.2.0", "1.2.0"); err != nil {
		t.Errorf("Check(1.2.0, min=1.2.0) should pass: %v", err)
	}
	if err := Check("2.0.0", "1.2.0"); err != nil {
		t.Errorf("Check(2.0.0, min=1.2.0) should pass: %v", err)
	}
}

func TestCheckUnparsableMinimumErrors(t *testing.T) {
	if err := Check("1.0.0", "not-a-version"); err == nil {
		t.Errorf("Check with an unparsable minimum should error")
	}
}
