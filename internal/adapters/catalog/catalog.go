// Package catalog reads the curriculum hierarchy (stories, units, assets).
// The progress engine never writes catalog rows.
package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/okian/lingotrack/internal/domain/model"
)

// Catalog returns immutable curriculum facts in catalog order.
type Catalog interface {
	UnitAssets(ctx context.Context, unitID string) ([]model.Asset, error)
	StoryUnits(ctx context.Context, storyID string) ([]model.Unit, error)
	Units(ctx context.Context, ids []string) ([]model.Unit, error)
	Stories(ctx context.Context, ids []string) ([]model.Story, error)
}

// GormCatalog reads the catalog tables.
type GormCatalog struct {
	db *gorm.DB
}

var _ Catalog = (*GormCatalog)(nil)

// NewGormCatalog creates a catalog reader.
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// Migrate creates the catalog tables. Only for dev and test databases; in
// production the content service owns them.
func (c *GormCatalog) Migrate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).AutoMigrate(&model.Story{}, &model.Unit{}, &model.Asset{}); err != nil {
		return fmt.Errorf("migrate catalog tables: %w", err)
	}
	return nil
}

func (c *GormCatalog) UnitAssets(ctx context.Context, unitID string) ([]model.Asset, error) {
	var out []model.Asset
	err := c.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("position").Order("id").
		Find(&out).Error
	return out, err
}

func (c *GormCatalog) StoryUnits(ctx context.Context, storyID string) ([]model.Unit, error) {
	var out []model.Unit
	err := c.db.WithContext(ctx).
		Where("story_id = ?", storyID).
		Order("position").Order("id").
		Find(&out).Error
	return out, err
}

func (c *GormCatalog) Units(ctx context.Context, ids []string) ([]model.Unit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []model.Unit
	err := c.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("story_id").Order("position").Order("id").
		Find(&out).Error
	return out, err
}

func (c *GormCatalog) Stories(ctx context.Context, ids []string) ([]model.Story, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []model.Story
	err := c.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("position").Order("id").
		Find(&out).Error
	return out, err
}
