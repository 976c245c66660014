package relay

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/ixugo/goddd/pkg/orm"
)

// StreamStatus 某 bridge 当前直播流的状态快照
type StreamStatus struct {
	BridgeID       string   `json:"bridge_id"`
	SegmentCount   int      `json:"segment_count"`
	TargetDuration float64  `json:"target_duration"`
	MediaSequence  uint64   `json:"media_sequence"`
	TotalBytes     int64    `json:"total_bytes"`
	UpdatedAt      orm.Time `json:"updated_at"`
}

// Status 解析当前 manifest 并统计磁盘上的分片
// manifest 不存在时返回 fs.ErrNotExist
func (c *Core) Status(bridgeID string) (*StreamStatus, error) {
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}

	out := StreamStatus{
		BridgeID:  filepath.Base(dir),
		UpdatedAt: orm.Time{Time: info.ModTime()},
	}

	pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(raw), true)
	if err != nil {
		return nil, fmt.Errorf("解析 manifest 失败: %w", err)
	}
	if kind == m3u8.MEDIA {
		media := pl.(*m3u8.MediaPlaylist)
		out.TargetDuration = media.TargetDuration
		out.MediaSequence = media.SeqNo
		for _, seg := range media.Segments {
			if seg != nil {
				out.SegmentCount++
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if fi, err := e.Info(); err == nil {
			out.TotalBytes += fi.Size()
		}
	}
	return &out, nil
}
