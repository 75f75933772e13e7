package conferences

import (
	"github.com/confdesk/backend/internal/users"
)

// ConferenceID identifies a conference; stable for as long as the row exists.
type ConferenceID int64

// SubthemeID identifies a subtheme; stable for as long as the row exists.
type SubthemeID int64

// DefaultSubthemeTypeID is applied when a subtheme is created without a type.
const DefaultSubthemeTypeID int64 = 1

// DefaultCategoryID is linked to conferences created without categories.
const DefaultCategoryID int64 = 1

// Conference is a top-level meeting record.
type Conference struct {
	ID           ConferenceID `json:"id"`
	Name         string       `json:"name"`
	Description  Description  `json:"description"`
	OriginalText string       `json:"original_text"`
	ImprovedText string       `json:"improved_text"`
}

// Subtheme is a topic discussed within exactly one conference.
type Subtheme struct {
	ID           SubthemeID   `json:"id"`
	ConferenceID ConferenceID `json:"conference_id"`
	Name         string       `json:"name"`
	Description  Description  `json:"description"`
	TypeID       int64        `json:"type_id"`
}

// Theme pairs a conference with its subthemes in source order. Themes are built
// fresh on every load and must not be mutated.
type Theme struct {
	Conference Conference
	Subthemes  []Subtheme
}

// ConferenceSummary is the list projection of a conference.
type ConferenceSummary struct {
	ID          ConferenceID `json:"id"`
	Name        string       `json:"name"`
	Description Description  `json:"description"`
}

// SubthemeDetails is a subtheme with the participants attached to it.
type SubthemeDetails struct {
	Subtheme
	Users []users.User `json:"users"`
}

// ConferenceDetails is the full view of a conference.
type ConferenceDetails struct {
	Conference Conference        `json:"conference"`
	Subthemes  []SubthemeDetails `json:"subthemes"`
}

// ConferenceInput carries a conference to create or replace.
type ConferenceInput struct {
	Name         string          `validate:"required,max=255"`
	Description  Description     `validate:"-"`
	Categories   []int64         `validate:"dive,gt=0"`
	Subthemes    []SubthemeInput `validate:"dive"`
	OriginalText string
	ImprovedText string
}

// SubthemeInput carries a subtheme to create or, when ID is set, update.
type SubthemeInput struct {
	ID          *SubthemeID `validate:"omitempty"`
	Name        string      `validate:"required,max=255"`
	Description Description `validate:"-"`
	TypeID      int64       `validate:"gte=0"`
	UserIDs     []int64     `validate:"dive,gt=0"`
}

// ConferenceRecord is the persisted conference row.
type ConferenceRecord struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Name         string  `gorm:"column:name;size:255;not null;index"`
	Description  *string `gorm:"column:description;type:text"`
	OriginalText string  `gorm:"column:original_text;type:text;not null;default:''"`
	ImprovedText string  `gorm:"column:improved_text;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (ConferenceRecord) TableName() string {
	return "conferences"
}

func (r ConferenceRecord) toConference() Conference {
	return Conference{
		ID:           ConferenceID(r.ID),
		Name:         r.Name,
		Description:  DescriptionFromPtr(r.Description),
		OriginalText: r.OriginalText,
		ImprovedText: r.ImprovedText,
	}
}

// SubthemeRecord is the persisted subtheme row.
type SubthemeRecord struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ConferenceID int64   `gorm:"column:conference_id;not null;index:idx_subthemes_conference,priority:1"`
	Name         string  `gorm:"column:name;size:255;not null"`
	Description  *string `gorm:"column:description;type:text"`
	TypeID       int64   `gorm:"column:type_id;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (SubthemeRecord) TableName() string {
	return "subthemes"
}

func (r SubthemeRecord) toSubtheme() Subtheme {
	return Subtheme{
		ID:           SubthemeID(r.ID),
		ConferenceID: ConferenceID(r.ConferenceID),
		Name:         r.Name,
		Description:  DescriptionFromPtr(r.Description),
		TypeID:       r.TypeID,
	}
}

// CategoryRecord is a conference category.
type CategoryRecord struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (CategoryRecord) TableName() string {
	return "categories"
}

// ConferenceCategoryRecord links a conference to a category.
type ConferenceCategoryRecord struct {
	ConferenceID int64 `gorm:"column:conference_id;primaryKey"`
	CategoryID   int64 `gorm:"column:category_id;primaryKey"`
}

// TableName provides the explicit table binding for GORM.
func (ConferenceCategoryRecord) TableName() string {
	return "conference_categories"
}

// SubthemeUserRecord links a participant to a subtheme.
type SubthemeUserRecord struct {
	SubthemeID int64 `gorm:"column:subtheme_id;primaryKey"`
	UserID     int64 `gorm:"column:user_id;primaryKey;index"`
}

// TableName provides the explicit table binding for GORM.
func (SubthemeUserRecord) TableName() string {
	return "subtheme_users"
}
