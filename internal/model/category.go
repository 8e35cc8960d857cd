package model

// Category groups tasks by area (work, health, study, etc.). Identifiers are
// server-issued when known so local and remote rows stay aligned; rows
// created before the remote has seen them get a local autoincrement id.
type Category struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (Category) TableName() string { return "categories" }
