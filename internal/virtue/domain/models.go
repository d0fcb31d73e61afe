package domain

import "time"

// Virtue is a catalog entry practitioners journal against. Rows are seeded by
// migrations and read-only at runtime.
type Virtue struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Virtue) TableName() string { return "virtues" }

// Defect is a character defect that a virtue counters.
type Defect struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Defect) TableName() string { return "defects" }

type VirtueDefect struct {
	VirtueID int64 `gorm:"primaryKey"`
	DefectID int64 `gorm:"primaryKey"`
}

func (VirtueDefect) TableName() string { return "virtue_defects" }

// CatalogEntry is a virtue with the defects it counters.
type CatalogEntry struct {
	Virtue
	Defects []Defect `json:"defects"`
}
