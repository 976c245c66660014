package bridge

import (
	"github.com/ixugo/goddd/pkg/orm"
)

// Bridge 一台已登记的边缘桥接设备
//
// 状态不变量: 记录要么在等待配对 (pair_code 非空且 paired=false)，
// 要么已配对 (pair_code 为空且 paired=true)，不存在第三种状态。
// api_key 创建时生成一次，配对流程不会重新生成。
type Bridge struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"column:name" json:"name"`
	APIKey            string    `gorm:"column:api_key" json:"-"`
	UserID            string    `gorm:"column:user_id" json:"user_id,omitempty"`
	PairCode          *string   `gorm:"column:pair_code;index" json:"-"`
	PairCodeExpiresAt *orm.Time `gorm:"column:pair_code_expires_at" json:"pair_code_expires_at,omitempty"`
	Paired            bool      `gorm:"column:paired" json:"paired"`
	BackendURL        string    `gorm:"column:backend_url" json:"backend_url,omitempty"`
	RTSPURL           string    `gorm:"column:rtsp_url" json:"rtsp_url,omitempty"`
	AgentVersion      string    `gorm:"column:agent_version" json:"agent_version,omitempty"`
	MachineID         string    `gorm:"column:machine_id" json:"machine_id,omitempty"`
	CreatedAt         orm.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         orm.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (*Bridge) TableName() string {
	return "bridges"
}

// AwaitingPairing 是否处于等待配对状态
func (b *Bridge) AwaitingPairing() bool {
	return !b.Paired && b.PairCode != nil
}
