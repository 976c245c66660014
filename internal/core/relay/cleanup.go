package relay

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// StartCleanupWorker 启动定时清理协程
// 启动时先清理一次，之后每 5 分钟执行一次
//
// 中转数据是短生命周期的滚动窗口，分片超过保留时长即删除；
// 磁盘使用率超过阈值时进一步删除最旧的原始流文件。
func (c *Core) StartCleanupWorker() {
	if c.conf == nil || c.conf.RetainMinutes <= 0 {
		slog.Info("relay cleanup disabled")
		return
	}

	slog.Info("relay cleanup worker started",
		"retain_minutes", c.conf.RetainMinutes,
		"disk_threshold", c.conf.DiskUsageThreshold,
		"dir", c.dir,
	)

	c.runCleanup()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.runCleanup()
	}
}

func (c *Core) runCleanup() {
	c.cleanupExpiredFiles()
	c.cleanupByDiskUsage()
	cleanupEmptyDirs(c.dir)
}

// tmpGraceAge 临时文件的宽限期，避免删掉正在写入的 manifest 临时文件
const tmpGraceAge = time.Minute

// cleanupExpiredFiles 删除超过保留时长的分片与原始流文件
// 当前 manifest 不删，它始终描述最新窗口
// 临时文件只清理超过宽限期的孤儿，新鲜的可能仍在写入
func (c *Core) cleanupExpiredFiles() {
	now := time.Now()
	cutoff := now.Add(-time.Duration(c.conf.RetainMinutes) * time.Minute)
	tmpCutoff := now.Add(-tmpGraceAge)

	var removed int
	var freed int64
	_ = filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Base(path) == manifestName {
			return nil
		}
		expired := info.ModTime().Before(cutoff)
		if strings.HasSuffix(path, ".tmp") {
			expired = info.ModTime().Before(tmpCutoff)
		}
		if expired {
			if err := os.Remove(path); err == nil {
				removed++
				freed += info.Size()
			}
		}
		return nil
	})

	if removed > 0 {
		slog.Info("relay cleanup completed",
			"reason", "retention_policy",
			"files_deleted", removed,
			"freed_bytes", freed,
		)
	}
}

// cleanupByDiskUsage 磁盘使用率超过阈值时删除最旧的原始流文件
func (c *Core) cleanupByDiskUsage() {
	if c.conf.DiskUsageThreshold <= 0 || c.conf.DiskUsageThreshold >= 100 {
		return
	}

	usage, err := getDiskUsage(c.dir)
	if err != nil {
		slog.Warn("failed to get disk usage", "err", err)
		return
	}
	if usage < c.conf.DiskUsageThreshold {
		return
	}

	type agedFile struct {
		path    string
		modTime time.Time
		size    int64
	}
	var files []agedFile
	rawDir := filepath.Join(c.dir, "raw")
	_ = filepath.Walk(rawDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, agedFile{path: path, modTime: info.ModTime(), size: info.Size()})
		return nil
	})

	// 最旧的优先删除
	for i := 0; i < len(files)-1; i++ {
		for j := i + 1; j < len(files); j++ {
			if files[j].modTime.Before(files[i].modTime) {
				files[i], files[j] = files[j], files[i]
			}
		}
	}

	var freed int64
	var removed int
	for _, f := range files {
		if err := os.Remove(f.path); err == nil {
			removed++
			freed += f.size
		}
		usage, err = getDiskUsage(c.dir)
		if err != nil || usage < c.conf.DiskUsageThreshold {
			break
		}
	}

	if removed > 0 {
		slog.Info("relay cleanup completed",
			"reason", "disk_threshold_exceeded",
			"threshold", c.conf.DiskUsageThreshold,
			"files_deleted", removed,
			"freed_bytes", freed,
		)
	}
}

// getDiskUsage 获取路径所在磁盘的使用率（百分比）
func getDiskUsage(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	return float64(total-free) / float64(total) * 100, nil
}

// cleanupEmptyDirs 递归删除空目录
func cleanupEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subDir := filepath.Join(dir, entry.Name())
		cleanupEmptyDirs(subDir)
		subEntries, err := os.ReadDir(subDir)
		if err == nil && len(subEntries) == 0 {
			_ = os.Remove(subDir)
		}
	}
}
