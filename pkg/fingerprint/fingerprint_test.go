package fingerprint

import (
	"regexp"
	"strings"
	"testing"
)

var composite = regexp.MustCompile(`^[0-9a-f]{16}-[0-9a-f]{8}-[0-9a-f]{4}$`)

func TestGenerate(t *testing.T) {

	fp := Generate()
	if fp == "" {
		t.Fatal("Failed to generate a fingerprint")
	}

	// either the composite form or the degraded 24 hex token
	if !composite.MatchString(fp) {
		if matched, _ := regexp.MatchString(`^[0-9a-f]{24}$`, fp); !matched {
			t.Fatalf("Unexpected fingerprint shape: %s", fp)
		}
		t.Logf("Degraded fingerprint on this host: %s", fp)
		return
	}

	// the composite fingerprint is stable across calls
	if fp != Generate() {
		t.Fatal("Failed to generate a stable fingerprint")
	}
}

func TestGroupHash(t *testing.T) {

	h := groupHash([]string{"cpu", "board", "id"}, 16)
	if len(h) != 16 {
		t.Fatalf("Incorrect group hash length: %s", h)
	}
	// deterministic on its parts
	if h != groupHash([]string{"cpu", "board", "id"}, 16) {
		t.Fatal("Failed to compute a deterministic group hash")
	}
	if h == groupHash([]string{"cpu", "board", "other"}, 16) {
		t.Fatal("Failed to separate distinct attribute groups")
	}
	// parts must not collide across boundaries
	if groupHash([]string{"ab", "c"}, 16) == groupHash([]string{"a", "bc"}, 16) {
		t.Fatal("Failed to delimit attribute parts")
	}
}

func TestSegmentIndependence(t *testing.T) {

	stable := []string{"cpu", "amd64", "linux", "board", "machine-id"}
	primary := groupHash(stable, 16)

	// a mac address change touches only the secondary segment
	before := groupHash([]string{"aa:bb:cc:dd:ee:ff", "host", "6.1.0"}, 8)
	after := groupHash([]string{"11:22:33:44:55:66", "host", "6.1.0"}, 8)
	if before == after {
		t.Fatal("Failed to reflect a network hardware swap in the secondary segment")
	}
	if primary != groupHash(stable, 16) {
		t.Fatal("The primary segment must not depend on semi-stable attributes")
	}
}

func TestDegraded(t *testing.T) {

	fp := degraded()
	if len(fp) != 24 {
		t.Fatalf("Incorrect degraded fingerprint length: %s", fp)
	}
	if strings.Contains(fp, "-") {
		t.Fatalf("The degraded fingerprint must be a single token: %s", fp)
	}
}

func TestDescribe(t *testing.T) {

	m := Describe()
	if m.Name == "" {
		t.Fatal("Failed to build a machine name")
	}
	if m.OS == "" {
		t.Fatal("Failed to build an os description")
	}
}
