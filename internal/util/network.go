package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
)

// NetworkInfo describes the filesystem a path lives on
type NetworkInfo struct {
	IsNetwork bool   // Whether the filesystem is network-mounted
	Protocol  string // nfs, cifs, smbfs, ... or empty if local
	MountPath string // Mount point, when known
}

// networkFSNames are substrings of mount type names that denote remote storage
var networkFSNames = []string{"nfs", "cifs", "smb", "afpfs", "ncpfs", "webdav", "fuse.sshfs", "fuse.rclone", "osxfuse"}

func isNetworkFSType(name string) bool {
	name = strings.ToLower(name)
	for _, n := range networkFSNames {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

// matchNetworkMount finds the longest mount point containing path and
// reports it if its type is a network filesystem.
func matchNetworkMount(path string, mounts map[string]string) *NetworkInfo {
	best := ""
	for mountPoint := range mounts {
		if !underMount(path, mountPoint) || len(mountPoint) <= len(best) {
			continue
		}
		best = mountPoint
	}
	if best == "" || !isNetworkFSType(mounts[best]) {
		return &NetworkInfo{}
	}
	return &NetworkInfo{IsNetwork: true, Protocol: strings.ToLower(mounts[best]), MountPath: best}
}

func underMount(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, strings.TrimRight(mountPoint, "/")+"/")
}

// DetectNetworkFilesystem checks if a path is on a network-mounted filesystem.
// SMB/CIFS and NFS are recognized on Linux and macOS; other platforms report local.
func DetectNetworkFilesystem(path string) (*NetworkInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(absPath, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	return detectPlatformNetwork(absPath, &stat)
}
