package bridgedb

import (
	"context"

	"github.com/heronvp/heron/internal/core/bridge"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ bridge.Storer = (*DB)(nil)

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

// AutoMigrate 按配置执行表迁移
func (d *DB) AutoMigrate(enabled bool) *DB {
	if enabled {
		_ = d.db.AutoMigrate(&bridge.Bridge{})
	}
	return d
}

func (d *DB) Bridge() bridge.BridgeStorer {
	return Bridge{db: d.db}
}

var _ bridge.BridgeStorer = Bridge{}

type Bridge struct {
	db *gorm.DB
}

// Get implements bridge.BridgeStorer.
func (b Bridge) Get(ctx context.Context, id string) (*bridge.Bridge, error) {
	var out bridge.Bridge
	if err := b.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByPairCode implements bridge.BridgeStorer.
func (b Bridge) FindByPairCode(ctx context.Context, code string) (*bridge.Bridge, error) {
	var out bridge.Bridge
	if err := b.db.WithContext(ctx).Where("pair_code = ?", code).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Add implements bridge.BridgeStorer.
func (b Bridge) Add(ctx context.Context, v *bridge.Bridge) error {
	return b.db.WithContext(ctx).Create(v).Error
}

// Edit implements bridge.BridgeStorer.
func (b Bridge) Edit(ctx context.Context, id string, changeFn func(*bridge.Bridge)) (*bridge.Bridge, error) {
	var out bridge.Bridge
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		changeFn(&out)
		out.UpdatedAt = orm.Now()
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsumePairCode implements bridge.BridgeStorer.
// 带条件的单条 UPDATE，保证同一配对码至多一次迁移
func (b Bridge) ConsumePairCode(ctx context.Context, code string) (bool, error) {
	tx := b.db.WithContext(ctx).Model(&bridge.Bridge{}).
		Where("pair_code = ? AND paired = ?", code, false).
		Updates(map[string]any{
			"paired":               true,
			"pair_code":            nil,
			"pair_code_expires_at": nil,
			"updated_at":           orm.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// Find implements bridge.BridgeStorer.
func (b Bridge) Find(ctx context.Context, items *[]*bridge.Bridge, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := b.db.WithContext(ctx).Model(&bridge.Bridge{})
	for _, fn := range opts {
		db = fn(db)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if pager != nil {
		db = db.Offset(pager.Offset()).Limit(pager.Limit())
	}
	if err := db.Find(items).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Del implements bridge.BridgeStorer.
func (b Bridge) Del(ctx context.Context, id string) (*bridge.Bridge, error) {
	var out bridge.Bridge
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		return tx.Delete(&bridge.Bridge{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
