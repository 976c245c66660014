package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heronvp/heron/internal/conf"
	"github.com/heronvp/heron/internal/core/bz"
	"github.com/ixugo/goddd/domain/uniqueid"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
)

// 配对与鉴权失败的稳定错误码
// 对外不区分是哪一半凭据出错
var (
	ErrInvalidPairCode = errors.New("invalid_pair_code")
	ErrUnauthorized    = errors.New("unauthorized")
)

// BridgeStorer 桥接记录的窄存储接口
// 只暴露配对与路由需要的操作，方便用内存实现做测试
type BridgeStorer interface {
	Get(ctx context.Context, id string) (*Bridge, error)
	FindByPairCode(ctx context.Context, code string) (*Bridge, error)
	Add(ctx context.Context, b *Bridge) error
	Edit(ctx context.Context, id string, changeFn func(*Bridge)) (*Bridge, error)
	// ConsumePairCode 原子地消费配对码并置为已配对
	// 同一配对码的并发请求至多一个返回 true
	ConsumePairCode(ctx context.Context, code string) (bool, error)
	Find(ctx context.Context, items *[]*Bridge, pager orm.Pager, opts ...orm.QueryOption) (int64, error)
	Del(ctx context.Context, id string) (*Bridge, error)
}

// Storer data persistence
type Storer interface {
	Bridge() BridgeStorer
}

// Core business domain
type Core struct {
	store Storer
	conf  *conf.Bridge
	uni   uniqueid.Core
}

func NewCore(store Storer, cfg *conf.Bridge, uni uniqueid.Core) Core {
	return Core{store: store, conf: cfg, uni: uni}
}

// AddBridge 登记一台新的桥接设备，生成 api_key 与一次性配对码
// 配对码随响应返回一次，之后只能重建记录
func (c Core) AddBridge(ctx context.Context, in *AddBridgeInput) (*AddBridgeOutput, error) {
	var b Bridge
	if err := copier.Copy(&b, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}

	b.ID = c.uni.UniqueID(bz.IDPrefixBridge)
	b.APIKey = strings.ReplaceAll(uuid.NewString(), "-", "")
	b.BackendURL = c.conf.BackendURL

	code := orm.GenerateRandomString(6)
	expires := orm.Time{Time: time.Now().Add(c.pairCodeTTL())}
	b.PairCode = &code
	b.PairCodeExpiresAt = &expires

	if err := c.store.Bridge().Add(ctx, &b); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return &AddBridgeOutput{Bridge: &b, PairCode: code}, nil
}

// Pair 用配对码换取长期凭据，状态机唯一的一次迁移
//
// 失败情形统一返回 ErrInvalidPairCode: 配对码不存在、已被消费、已过期。
// 成功后配对码被原子置空，同码重放必然失败。
func (c Core) Pair(ctx context.Context, in *PairInput) (*PairOutput, error) {
	b, err := c.store.Bridge().FindByPairCode(ctx, in.PairCode)
	if err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, ErrInvalidPairCode
		}
		return nil, reason.ErrDB.Withf(`FindByPairCode err[%s]`, err.Error())
	}
	if !b.AwaitingPairing() {
		return nil, ErrInvalidPairCode
	}
	if b.PairCodeExpiresAt != nil && time.Now().After(b.PairCodeExpiresAt.Time) {
		return nil, ErrInvalidPairCode
	}

	ok, err := c.store.Bridge().ConsumePairCode(ctx, in.PairCode)
	if err != nil {
		return nil, reason.ErrDB.Withf(`ConsumePairCode err[%s]`, err.Error())
	}
	if !ok {
		// 并发配对竞争失败，视同无效码
		return nil, ErrInvalidPairCode
	}

	if in.AgentVersion != "" || in.MachineID != "" {
		if _, err := c.store.Bridge().Edit(ctx, b.ID, func(v *Bridge) {
			v.AgentVersion = in.AgentVersion
			v.MachineID = in.MachineID
		}); err != nil {
			slog.WarnContext(ctx, "记录 agent 信息失败", "bridge_id", b.ID, "err", err)
		}
	}

	slog.InfoContext(ctx, "bridge paired", "bridge_id", b.ID, "agent_version", in.AgentVersion)
	return &PairOutput{
		BridgeID:       b.ID,
		APIKey:         b.APIKey,
		RTSPURL:        b.RTSPURL,
		BackendURL:     c.conf.BackendURL,
		UploadBaseURL:  strings.TrimRight(c.conf.BackendURL, "/") + "/bridge/" + b.ID,
		PollIntervalMs: c.pollIntervalMs(),
	}, nil
}

// Authenticate 校验 bridge id 与 api_key
// 失败原因不外泄，统一返回 ErrUnauthorized
func (c Core) Authenticate(ctx context.Context, id, apiKey string) (*Bridge, error) {
	if id == "" || apiKey == "" {
		return nil, ErrUnauthorized
	}
	b, err := c.store.Bridge().Get(ctx, id)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if !b.Paired {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(b.APIKey), []byte(apiKey)) != 1 {
		return nil, ErrUnauthorized
	}
	return b, nil
}

// GetAgentConfig agent 状态轮询
func (c Core) GetAgentConfig(b *Bridge) *AgentConfigOutput {
	return &AgentConfigOutput{
		BridgeID:       b.ID,
		RTSPURL:        b.RTSPURL,
		PollIntervalMs: c.pollIntervalMs(),
	}
}

// GetBridge Query a single object
func (c Core) GetBridge(ctx context.Context, id string) (*Bridge, error) {
	b, err := c.store.Bridge().Get(ctx, id)
	if err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return b, nil
}

// FindBridges 分页查询桥接设备
func (c Core) FindBridges(ctx context.Context, in *FindBridgeInput) ([]*Bridge, int64, error) {
	query := orm.NewQuery(2).OrderBy("created_at DESC")
	if in.Name != "" {
		query.Where("name LIKE ?", "%"+in.Name+"%")
	}
	if in.Paired != nil {
		query.Where("paired = ?", *in.Paired)
	}

	items := make([]*Bridge, 0, in.Limit())
	total, err := c.store.Bridge().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// DelBridge Delete object
func (c Core) DelBridge(ctx context.Context, id string) (*Bridge, error) {
	b, err := c.store.Bridge().Del(ctx, id)
	if err != nil {
		return nil, reason.ErrDB.Withf(`Del id[%v] err[%s]`, id, err.Error())
	}
	return b, nil
}

func (c Core) pollIntervalMs() int {
	if c.conf != nil && c.conf.PollIntervalMs > 0 {
		return c.conf.PollIntervalMs
	}
	return 5000
}

func (c Core) pairCodeTTL() time.Duration {
	if c.conf != nil && c.conf.PairCodeTTL > 0 {
		return c.conf.PairCodeTTL.Duration()
	}
	return 10 * time.Minute
}
