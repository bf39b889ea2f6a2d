// model.go defines the persisted generation record
package datastore

import "time"

// Generation statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// ValidStatuses lists the statuses accepted by list filters
var ValidStatuses = []string{StatusSuccess, StatusFailed, StatusPending}

// ImageGeneration is one persisted image generation attempt. Records are created
// once per attempt, including failed ones, and are never updated.
type ImageGeneration struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Prompt           string    `gorm:"type:text;not null" json:"prompt"`
	Size             string    `gorm:"size:50;not null" json:"size"`
	Quality          string    `gorm:"size:50;not null" json:"quality"`
	Style            string    `gorm:"size:50;not null" json:"style"`
	ImageURL         string    `gorm:"type:text" json:"imageUrl"`
	RevisedPrompt    *string   `gorm:"type:text" json:"revisedPrompt"`
	UserID           *string   `gorm:"size:100;index:idx_image_generations_user_id" json:"userId"`
	GenerationTimeMs int64     `gorm:"not null;default:0" json:"generationTimeMs"`
	Status           string    `gorm:"size:50;not null;default:success" json:"status"`
	ErrorMessage     *string   `gorm:"type:text" json:"errorMessage"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index:idx_image_generations_created_at" json:"createdAt"`
}

// TableName returns the table name for GORM.
func (ImageGeneration) TableName() string {
	return "image_generations"
}

// GenerationFilters narrows List, Count and Stats queries. Zero values are ignored.
type GenerationFilters struct {
	UserID    string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// GenerationStats summarizes stored generations
type GenerationStats struct {
	Total                   int64   `json:"total"`
	Successful              int64   `json:"successful"`
	Failed                  int64   `json:"failed"`
	AverageGenerationTimeMs float64 `json:"averageGenerationTimeMs"`
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
