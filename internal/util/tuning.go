package util

import (
	"fmt"
	"time"
)

// IOTuning adjusts filesystem access for the storage a workspace lives on
type IOTuning struct {
	Concurrency int
	Retry       *RetryConfig
	Network     *NetworkInfo // nil for local or undetectable storage
}

// TuneForPath detects whether path is network-mounted and returns settings
// for scanning it. Detection failures fall back to local settings.
func TuneForPath(path string, baseConcurrency int) *IOTuning {
	info, err := DetectNetworkFilesystem(path)
	if err != nil {
		DebugLog("Filesystem detection failed for %s: %v", path, err)
		info = nil
	}
	t := tuneFor(info, baseConcurrency)
	if t.Network != nil {
		InfoLog("Network filesystem detected: %s", t)
	}
	return t
}

func tuneFor(info *NetworkInfo, baseConcurrency int) *IOTuning {
	t := &IOTuning{Concurrency: baseConcurrency, Retry: DefaultRetryConfig()}
	if info == nil || !info.IsNetwork {
		return t
	}

	t.Network = info
	// NAS devices handle few concurrent requests well
	switch {
	case t.Concurrency <= 0:
		t.Concurrency = 2
	case t.Concurrency > 4:
		t.Concurrency = 4
	}
	t.Retry = &RetryConfig{
		MaxAttempts: 5,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
	return t
}

func (t *IOTuning) String() string {
	if t.Network == nil {
		return fmt.Sprintf("local, %d workers", t.Concurrency)
	}
	mount := t.Network.MountPath
	if mount == "" {
		mount = "unknown mount"
	}
	return fmt.Sprintf("%s at %s, %d workers, %d attempts", t.Network.Protocol, mount, t.Concurrency, t.Retry.MaxAttempts)
}
