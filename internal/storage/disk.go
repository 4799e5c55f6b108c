package storage

import (
	"os"
)

// scratchSuffixes are the files SQLite keeps next to the database in WAL mode.
var scratchSuffixes = []string{"", "-wal", "-shm"}

// ScratchSizeBytes returns the on-disk size of the SQLite scratch database at dbPath,
// including its WAL and shared-memory files. Missing files count as zero.
func ScratchSizeBytes(dbPath string) (int64, error) {
	if dbPath == "" {
		return 0, nil
	}
	var total int64
	for _, suffix := range scratchSuffixes {
		info, err := os.Stat(dbPath + suffix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}
