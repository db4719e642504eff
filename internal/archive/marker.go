package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/mbflat/internal/util"
	"github.com/goccy/go-json"
)

// MarkerSuffix names the file recording a finished extraction.
const MarkerSuffix = ".extracted.json"

type marker struct {
	Archive     string    `json:"archive"`
	Bytes       int64     `json:"bytes"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// IsExtracted reports whether target was produced by a finished extraction
// and still has the size recorded then.
func IsExtracted(target string) (bool, error) {
	data, err := os.ReadFile(target + MarkerSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		util.WarnLog("Ignoring unreadable extraction marker for %s: %v", target, err)
		return false, nil
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular() && info.Size() == m.Bytes, nil
}

func writeMarker(target, archive string, n int64) error {
	data, err := json.Marshal(marker{Archive: filepath.Base(archive), Bytes: n, ExtractedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(target+MarkerSuffix, append(data, '\n'), util.WriteOptions{Fsync: true})
}

func removeMarker(target string) error {
	if err := os.Remove(target + MarkerSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker of %s: %w", target, err)
	}
	return nil
}
