//go:build !linux

package util

// FilesystemType is only implemented on Linux; elsewhere every path is
// reported as local, which keeps mmap as the default reader.
func FilesystemType(path string) (string, bool) {
	return "local", false
}
