package cache

// row is the gorm model backing the cache table (spec.md §6):
// id VARCHAR(64) PRIMARY KEY, data TEXT, is_lru TINYINT, create_time
// VARCHAR(32), duration INTEGER NULL.
type row struct {
	ID         string `gorm:"column:id;primaryKey;size:64"`
	Data       string `gorm:"column:data;not null"`
	IsLRU      bool   `gorm:"column:is_lru;not null"`
	CreateTime string `gorm:"column:create_time;size:32;not null"`
	Duration   *int64 `gorm:"column:duration"` // seconds, nil = infinite
}

func (row) TableName() string { return "cache" }
