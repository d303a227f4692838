//go:build darwin

package util

import "syscall"

func detectPlatformNetwork(path string, stat *syscall.Statfs_t) (*NetworkInfo, error) {
	fsType := cString(stat.Fstypename[:])
	if !isNetworkFSType(fsType) {
		return &NetworkInfo{}, nil
	}
	return &NetworkInfo{
		IsNetwork: true,
		Protocol:  fsType,
		MountPath: cString(stat.Mntonname[:]),
	}, nil
}

// cString converts a NUL-terminated int8 array to a string
func cString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
