//go:build linux

package util

import (
	"strings"
	"testing"
)

func TestParseProcMounts(t *testing.T) {
	mounts, err := parseProcMounts()
	if err != nil {
		t.Fatalf("Failed to parse /proc/mounts: %v", err)
	}

	if _, found := mounts["/"]; !found {
		t.Error("Expected root filesystem to be mounted")
	}
}

func TestParseMounts(t *testing.T) {
	input := `sysfs /sys sysfs rw 0 0
nas:/export /mnt/nas nfs4 rw 0 0
//server/share /mnt/my\040share cifs rw 0 0
short line
`
	mounts, err := parseMounts(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) != 3 {
		t.Fatalf("Expected 3 mounts, got %d: %v", len(mounts), mounts)
	}
	if mounts["/mnt/nas"] != "nfs4" {
		t.Errorf("Expected nfs4 at /mnt/nas, got %q", mounts["/mnt/nas"])
	}
	if mounts["/mnt/my share"] != "cifs" {
		t.Errorf("Expected unescaped mount point, got %v", mounts)
	}
}
