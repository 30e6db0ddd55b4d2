package version

import "testing"

func TestGet(t *testing.T) {
	if got := Get(); got == "" {
		t.Fatal("Get() returned empty version")
	}
}

func TestGetOverride(t *testing.T) {
	old := override
	defer func() { override = old }()

	override = " 9.9.9\n"
	if got := Get(); got != "9.9.9" {
		t.Errorf("Get() = %q, want 9.9.9", got)
	}
}
