package promise

// row is the gorm model backing the promise table (spec.md §6):
// id VARCHAR(64) PRIMARY KEY, business_id VARCHAR(64), path VARCHAR(128),
// data TEXT. id is the UUIDv5 promise key; data is the JSON-encoded
// Snapshot.
type row struct {
	ID         string `gorm:"column:id;primaryKey;size:64"`
	BusinessID string `gorm:"column:business_id;size:64;not null;index"`
	Path       string `gorm:"column:path;size:128;not null"`
	Data       string `gorm:"column:data;not null"`
}

func (row) TableName() string { return "promise" }
