package runner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// cleanup removes the compiled binary and its launcher-wrapped twin
func (d *TestDriver) cleanup(name string) {
	for _, file := range []string{name, name + "_real"} {
		path := filepath.Join(d.rc.Dir, file)
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, unix.EBUSY) {
				d.log.Warn("Binary is still in use", "file", path)
			}
			d.events.Event("Warning: could not remove %s: %v", file, err)
		}
	}
}

func (d *TestDriver) removeArtifact(file string) {
	if err := os.Remove(filepath.Join(d.rc.Dir, file)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.log.Warn("Failed to remove artifact", "file", file, "err", err)
	}
}
