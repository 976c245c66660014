package relay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heronvp/heron/internal/conf"
	"github.com/ixugo/goddd/pkg/conc"
)

const manifestName = "index.m3u8"

// ErrInvalidFilename 文件名清洗后为空或非法
var ErrInvalidFilename = errors.New("invalid filename")

// Core 流中转存储
//
// 每个 bridge 在存储根目录下拥有一个命名空间，保存当前 manifest
// 与滚动的分片文件。没有数据库行，文件存在即状态存在。
type Core struct {
	dir      string
	conf     *conf.Relay
	sessions conc.Map[string, *RawSession]
}

// NewCore 初始化中转存储，存储根目录不可用时返回错误
// 调用方应视其为启动期致命错误
func NewCore(cfg *conf.Relay) (*Core, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "heron-relay")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("中转存储目录不可用: %w", err)
	}
	return &Core{dir: dir, conf: cfg}, nil
}

// Dir 存储根目录
func (c *Core) Dir() string {
	return c.dir
}

// SanitizeFilename 将客户端提供的文件名压缩为裸文件名
// 去掉所有路径成分，杜绝目录穿越
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFilename
	}
	return name, nil
}

func (c *Core) bridgeDir(bridgeID string) (string, error) {
	id, err := SanitizeFilename(bridgeID)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.dir, id), nil
}

// SaveManifest 全量覆盖当前 manifest
// 先写临时文件再原子改名，避免观看端读到半截文件
func (c *Core) SaveManifest(bridgeID string, r io.Reader) error {
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, manifestName+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, manifestName))
}

// ReadManifest 读取当前 manifest 原始字节，未改写
// 不存在时返回 fs.ErrNotExist
func (c *Core) ReadManifest(bridgeID string) ([]byte, error) {
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(dir, manifestName))
}

// SaveSegment 保存一个分片，文件名先清洗为裸文件名
// 分片只增不改，重名上传为最后一次写入生效
func (c *Core) SaveSegment(bridgeID, filename string, r io.Reader) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	return name, f.Close()
}

// OpenSegment 打开一个分片用于下发
// 不存在时返回 fs.ErrNotExist
func (c *Core) OpenSegment(bridgeID, filename string) (*os.File, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(dir, name))
}

// RawSession 一条持续推送的原始传输流
type RawSession struct {
	BridgeID  string
	SessionID string
	Path      string
	StartedAt time.Time
	file      *os.File
}

func (s *RawSession) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *RawSession) Close() error {
	return s.file.Close()
}

// CreateRawSink 为一次原始流推送创建落盘目标
// 路径由 bridge id + session id + 时间戳组成
func (c *Core) CreateRawSink(bridgeID, sessionID string) (*RawSession, error) {
	id, err := SanitizeFilename(bridgeID)
	if err != nil {
		return nil, err
	}
	sid, err := SanitizeFilename(sessionID)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(c.dir, "raw", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.ts", sid, now.UnixMilli()))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	s := &RawSession{
		BridgeID:  id,
		SessionID: sid,
		Path:      path,
		StartedAt: now,
		file:      f,
	}
	c.sessions.Store(id+"/"+sid, s)
	return s, nil
}

// CloseRawSink 结束一次原始流推送
func (c *Core) CloseRawSink(s *RawSession) {
	c.sessions.Delete(s.BridgeID + "/" + s.SessionID)
	if err := s.Close(); err != nil {
		slog.Warn("close raw sink", "path", s.Path, "err", err)
	}
}

// HasStream bridge 是否有已上传的 manifest
func (c *Core) HasStream(bridgeID string) bool {
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, manifestName))
	return err == nil
}

// RemoveNamespace 删除 bridge 的整个中转命名空间
// 随桥接设备删除一并清理
func (c *Core) RemoveNamespace(bridgeID string) error {
	dir, err := c.bridgeDir(bridgeID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.RemoveAll(filepath.Join(c.dir, "raw", filepath.Base(dir)))
}
