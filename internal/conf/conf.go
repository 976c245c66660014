package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Bootstrap 程序启动配置
type Bootstrap struct {
	ConfigPath   string `toml:"-"`
	BuildVersion string `toml:"-"`
	Debug        bool   `toml:"debug"`

	Server Server `toml:"server"`
	Data   Data   `toml:"data"`
	Probe  Probe  `toml:"probe"`
	Bridge Bridge `toml:"bridge"`
	Relay  Relay  `toml:"relay"`
	Media  Media  `toml:"media"`
}

type Server struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	HTTP     HTTP   `toml:"http"`
}

type HTTP struct {
	Port      int    `toml:"port"`
	JwtSecret string `toml:"jwt_secret"`
	PProf     PProf  `toml:"pprof"`
}

type PProf struct {
	Enabled   bool     `toml:"enabled"`
	AccessIps []string `toml:"access_ips"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	// Dsn 以 postgres/mysql 开头时连接对应数据库，否则视为 sqlite 文件路径
	Dsn             string   `toml:"dsn"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

// Probe 摄像机探测配置
type Probe struct {
	// Workers 验证候选地址的并发上限，防止对单一主机打开过多连接
	Workers        int `toml:"workers"`
	TimeoutMs      int `toml:"timeout_ms"`       // 单候选 RTSP/MJPEG 验证超时
	OnvifTimeoutMs int `toml:"onvif_timeout_ms"` // 所有 ONVIF 端口共享的超时
}

// Bridge 桥接网关配置
type Bridge struct {
	// BackendURL 配对成功后下发给 agent 的服务端地址
	BackendURL     string   `toml:"backend_url"`
	PollIntervalMs int      `toml:"poll_interval_ms"`
	PairCodeTTL    Duration `toml:"pair_code_ttl"`
}

// Relay 流中转存储配置
type Relay struct {
	Dir                string  `toml:"dir"`
	RetainMinutes      int     `toml:"retain_minutes"`
	DiskUsageThreshold float64 `toml:"disk_usage_threshold"`
}

// Media 可选的外部媒体分析服务
type Media struct {
	GrpcAddr string `toml:"grpc_addr"`
}

// Duration 支持 "30s"/"5m" 字符串格式的时长
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// SetupConfig 读取配置文件，文件不存在时写入默认配置
// 环境变量 HERON_RELAY_DIR / HERON_HTTP_PORT / HERON_DB_DSN 优先级最高
func SetupConfig(path string) (*Bootstrap, error) {
	bc := defaultBootstrap()
	bc.ConfigPath = path

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(b, bc); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	case os.IsNotExist(err):
		if err := WriteConfig(bc, path); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	applyEnv(bc)
	return bc, nil
}

// WriteConfig 将配置写回文件
func WriteConfig(bc *Bootstrap, path string) error {
	b, err := toml.Marshal(bc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

func defaultBootstrap() *Bootstrap {
	return &Bootstrap{
		Server: Server{
			HTTP: HTTP{Port: 8080},
		},
		Data: Data{
			Database: Database{
				Dsn:             "heron.db",
				MaxIdleConns:    10,
				MaxOpenConns:    100,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
			},
		},
		Probe: Probe{
			Workers:        8,
			TimeoutMs:      2000,
			OnvifTimeoutMs: 3000,
		},
		Bridge: Bridge{
			PollIntervalMs: 5000,
			PairCodeTTL:    Duration(10 * time.Minute),
		},
		Relay: Relay{
			Dir:                filepath.Join(os.TempDir(), "heron-relay"),
			RetainMinutes:      30,
			DiskUsageThreshold: 90,
		},
	}
}

func applyEnv(bc *Bootstrap) {
	if v := os.Getenv("HERON_RELAY_DIR"); v != "" {
		bc.Relay.Dir = v
	}
	if v := os.Getenv("HERON_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			bc.Server.HTTP.Port = port
		}
	}
	if v := os.Getenv("HERON_DB_DSN"); v != "" {
		bc.Data.Database.Dsn = v
	}
}
