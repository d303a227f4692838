//go:build linux

package util

import (
	"bufio"
	"io"
	"os"
	"strings"
	"syscall"
)

// Kernel VFS magic numbers of network filesystems
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0x517b:     "smb",
	0xfe534d42: "smb2",
	0x564c:     "ncp",
}

func detectPlatformNetwork(path string, stat *syscall.Statfs_t) (*NetworkInfo, error) {
	info := &NetworkInfo{}
	if proto, ok := networkMagic[uint32(stat.Type)]; ok {
		info.IsNetwork = true
		info.Protocol = proto
	}

	mounts, err := parseProcMounts()
	if err != nil {
		// The magic number alone decides
		return info, nil
	}
	if m := matchNetworkMount(path, mounts); m.IsNetwork {
		return m, nil
	}
	return info, nil
}

func parseProcMounts() (map[string]string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMounts(f)
}

// parseMounts reads fstab-style lines: device mountpoint fstype options ...
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// /proc/mounts escapes spaces in mount points as \040
		mounts[strings.ReplaceAll(fields[1], `\040`, " ")] = fields[2]
	}
	return mounts, scanner.Err()
}
