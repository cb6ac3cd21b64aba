package fuse

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
)

// FilesystemStats represents filesystem operation statistics
type FilesystemStats struct {
	Lookups      int64 `json:"lookups"`
	Opens        int64 `json:"opens"`
	Reads        int64 `json:"reads"`
	Writes       int64 `json:"writes"`
	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`
	Errors       int64 `json:"errors"`
}

// MountConfig contains mount-specific configuration
type MountConfig struct {
	MountPoint   string        `yaml:"mount_point"`
	FSName       string        `yaml:"fsname"`
	AllowOther   bool          `yaml:"allow_other"`
	Debug        bool          `yaml:"debug"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

func validateMountPoint(mountPoint string, logger *zap.Logger) error {
	if mountPoint == "" {
		return mountError(mountPoint, "mount point cannot be empty", nil)
	}

	info, err := os.Stat(mountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return mountError(mountPoint, "mount point does not exist", err)
		}
		return mountError(mountPoint, "cannot access mount point", err)
	}
	if !info.IsDir() {
		return mountError(mountPoint, "mount point is not a directory", nil)
	}

	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		return mountError(mountPoint, "cannot read mount point directory", err)
	}
	if len(entries) > 0 {
		logger.Warn("mount point is not empty", zap.String("mount_point", mountPoint))
	}

	if isMounted(mountPoint, "/proc/mounts") {
		return mountError(mountPoint, "mount point is already mounted", nil)
	}
	return nil
}

// isMounted reports whether mountPoint appears as a mount target in the
// given mounts table.
func isMounted(mountPoint, mountsFile string) bool {
	data, err := os.ReadFile(mountsFile)
	if err != nil {
		return false
	}

	target := filepath.Clean(mountPoint)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == target {
			return true
		}
	}
	return false
}

func mountError(mountPoint, message string, cause error) error {
	e := errors.NewError(errors.ErrCodeMountFailed, message).
		WithComponent("fuse").
		WithContext("mount_point", mountPoint)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
