package model

// Story groups units in catalog order.
type Story struct {
	ID       string `json:"id" gorm:"primaryKey;size:64"`
	Title    string `json:"title"`
	Position int    `json:"position" gorm:"not null"`
}

// TableName pins the table name.
func (Story) TableName() string { return "stories" }

// Unit is the smallest curriculum item a learner progresses through.
type Unit struct {
	ID       string `json:"id" gorm:"primaryKey;size:64"`
	StoryID  string `json:"story_id" gorm:"not null;size:64;index"`
	Title    string `json:"title"`
	Position int    `json:"position" gorm:"not null"`
}

// TableName pins the table name.
func (Unit) TableName() string { return "units" }

// Asset is a consumable media item that belongs to a unit.
type Asset struct {
	ID              string `json:"id" gorm:"primaryKey;size:64"`
	UnitID          string `json:"unit_id" gorm:"not null;size:64;index"`
	AssetType       string `json:"asset_type" gorm:"not null;size:32"` // video, audio, subtitle, screenshot, metadata
	StorageKey      string `json:"storage_key"`
	DurationSeconds *int   `json:"duration_seconds"`
	Position        int    `json:"position" gorm:"not null"`
}

// TableName pins the table name.
func (Asset) TableName() string { return "unit_assets" }

// AssetIDs returns the ids of assets in order.
func AssetIDs(assets []Asset) []string {
	ids := make([]string, len(assets))
	for i := range assets {
		ids[i] = assets[i].ID
	}
	return ids
}
