package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/heronvp/heron/internal/conf"
	"github.com/heronvp/heron/internal/core/bridge"
	"github.com/heronvp/heron/internal/core/bridge/store/bridgedb"
	"github.com/heronvp/heron/internal/core/probe"
	"github.com/heronvp/heron/internal/core/relay"
	"github.com/heronvp/heron/internal/rpc"
	"github.com/ixugo/goddd/domain/uniqueid"
	"github.com/ixugo/goddd/domain/uniqueid/store/uniqueiddb"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewUniqueID,
	NewProbeCore, NewProbeAPI,
	NewBridgeStore, NewBridgeCore,
	NewRelayCore,
	NewBridgeAPI,
	NewMediaClient,
	NewUserAPI,
)

type Usecase struct {
	Conf      *conf.Bootstrap
	DB        *gorm.DB
	UniqueID  uniqueid.Core
	ProbeAPI  ProbeAPI
	BridgeAPI BridgeAPI
	UserAPI   UserAPI
	Media     *rpc.MediaClient
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if cfg.HTTP.JwtSecret == "" {
		uc.Conf.Server.HTTP.JwtSecret = orm.GenerateRandomString(32)
	}
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	// 如果启用了 Pprof，设置 Pprof 监控
	if cfg.HTTP.PProf.Enabled {
		web.SetupPProf(g, &cfg.HTTP.PProf.AccessIps)
	}

	setupRouter(g, uc) // 设置路由处理函数
	return g
}

// NewUniqueID 唯一 id 生成器
func NewUniqueID(db *gorm.DB) uniqueid.Core {
	return uniqueid.NewCore(uniqueiddb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()), 5)
}

func NewProbeCore(bc *conf.Bootstrap) probe.Core {
	return probe.NewCore(&bc.Probe)
}

func NewBridgeStore(db *gorm.DB) bridge.Storer {
	return bridgedb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

func NewBridgeCore(store bridge.Storer, bc *conf.Bootstrap, uni uniqueid.Core) bridge.Core {
	return bridge.NewCore(store, &bc.Bridge, uni)
}

func NewRelayCore(bc *conf.Bootstrap) (*relay.Core, error) {
	core, err := relay.NewCore(&bc.Relay)
	if err != nil {
		return nil, err
	}
	go core.StartCleanupWorker()
	return core, nil
}

// NewMediaClient 可选的媒体分析服务，未配置时返回 nil
func NewMediaClient(bc *conf.Bootstrap) *rpc.MediaClient {
	return rpc.NewMediaClient(bc.Media.GrpcAddr)
}
