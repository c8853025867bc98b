package domain

import "time"

// Location is a reference-data row describing a shelving location. The
// reference set is loaded from the ILS and shared read-only across jobs.
type Location struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Code  string `gorm:"type:text;not null;uniqueIndex:idx_locations_code" json:"code"`
	Label string `gorm:"type:text" json:"label"`
}

// TableName returns the database table name for Location.
func (Location) TableName() string {
	return "locations"
}

// BibRecord mirrors a bibliographic record from the ILS database. When
// the ILS deletes a record it keeps a tombstone row carrying only the ID
// and DeletionDate, which is how deletion chunks find their targets.
type BibRecord struct {
	ID           uint64     `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"type:text" json:"title"`
	Author       string     `gorm:"type:text" json:"author"`
	LocationCode string     `gorm:"type:text;index" json:"location_code"`
	Suppressed   bool       `gorm:"default:false" json:"suppressed"`
	UpdatedAt    time.Time  `gorm:"index" json:"updated_at"`
	DeletionDate *time.Time `gorm:"index" json:"deletion_date,omitempty"`

	Items []ItemRecord `gorm:"foreignKey:BibID" json:"items,omitempty"`
}

// TableName returns the database table name for BibRecord.
func (BibRecord) TableName() string {
	return "bib_records"
}

// ItemRecord mirrors an item (holding) record attached to a bib. The
// location is nullable: newly created items may not have been assigned
// one yet, which the bib-location only-null-items filter keys on.
type ItemRecord struct {
	ID           uint64     `gorm:"primaryKey" json:"id"`
	BibID        uint64     `gorm:"not null;index" json:"bib_id"`
	Barcode      string     `gorm:"type:text" json:"barcode"`
	CallNumber   string     `gorm:"type:text" json:"call_number"`
	LocationCode *string    `gorm:"type:text;index" json:"location_code,omitempty"`
	Suppressed   bool       `gorm:"default:false" json:"suppressed"`
	UpdatedAt    time.Time  `gorm:"index" json:"updated_at"`
	DeletionDate *time.Time `gorm:"index" json:"deletion_date,omitempty"`
}

// TableName returns the database table name for ItemRecord.
func (ItemRecord) TableName() string {
	return "item_records"
}
