//go:build linux

package util

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

var networkMagic = map[int64]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x517b:     "smb",
	0x65735546: "fuse",
	0x01021997: "v9fs",
	0x00c36400: "ceph",
}

var networkFSTypes = []string{"nfs", "cifs", "smb", "ceph", "glusterfs", "fuse.sshfs", "9p", "lustre"}

// FilesystemType returns the filesystem type of the mount containing path
// and whether it is a network filesystem.
func FilesystemType(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if fsType, ok := mountType(abs); ok {
		lower := strings.ToLower(fsType)
		for _, n := range networkFSTypes {
			if strings.HasPrefix(lower, n) {
				return fsType, true
			}
		}
		return fsType, false
	}

	var st syscall.Statfs_t
	if err := syscall.Statfs(abs, &st); err != nil {
		return "", false
	}
	if name, ok := networkMagic[int64(st.Type)]; ok {
		return name, true
	}
	return "local", false
}

// mountType finds the longest mount point prefix of path in /proc/mounts.
func mountType(path string) (string, bool) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", false
	}
	defer f.Close()

	best, bestType := "", ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		mnt := strings.ReplaceAll(fields[1], `\040`, " ")
		if !within(path, mnt) || len(mnt) < len(best) {
			continue
		}
		best, bestType = mnt, fields[2]
	}
	return bestType, best != ""
}

func within(path, mnt string) bool {
	if mnt == "/" {
		return true
	}
	return path == mnt || strings.HasPrefix(path, mnt+"/")
}
