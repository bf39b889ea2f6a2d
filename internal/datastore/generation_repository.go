package datastore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tphakala/iconforge/internal/errors"
)

// GenerationRepository stores and queries image generation records.
type GenerationRepository interface {
	// Create inserts a new record. An empty ID is replaced with a new UUID.
	Create(ctx context.Context, gen *ImageGeneration) error
	// GetByID returns ErrGenerationNotFound when no record matches.
	GetByID(ctx context.Context, id string) (*ImageGeneration, error)
	// List returns records newest first. Limit and Offset apply when positive.
	List(ctx context.Context, filters GenerationFilters) ([]ImageGeneration, error)
	// Count counts records matching the user and status filters only.
	Count(ctx context.Context, filters GenerationFilters) (int64, error)
	// Delete removes a record and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Stats summarizes records, applying the user filter only.
	Stats(ctx context.Context, filters GenerationFilters) (GenerationStats, error)
}

// generationRepository implements GenerationRepository.
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new GenerationRepository.
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

func (r *generationRepository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&ImageGeneration{})
}

func (r *generationRepository) Create(ctx context.Context, gen *ImageGeneration) error {
	if gen == nil {
		return errors.New(ErrInvalidInput).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("operation", "create-generation").
			Build()
	}
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.Status == "" {
		gen.Status = StatusPending
	}

	if err := r.db.WithContext(ctx).Create(gen).Error; err != nil {
		return dbError(err, "create-generation", "generation_id", gen.ID)
	}
	return nil
}

func (r *generationRepository) GetByID(ctx context.Context, id string) (*ImageGeneration, error) {
	var gen ImageGeneration
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&gen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, dbError(err, "get-generation", "generation_id", id)
	}
	return &gen, nil
}

// applyOwnerFilters applies the filters shared by List, Count and Stats
func applyOwnerFilters(q *gorm.DB, filters GenerationFilters, withStatus bool) *gorm.DB {
	if filters.UserID != "" {
		q = q.Where("user_id = ?", filters.UserID)
	}
	if withStatus && filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	return q
}

func (r *generationRepository) List(ctx context.Context, filters GenerationFilters) ([]ImageGeneration, error) {
	q := applyOwnerFilters(r.model(ctx), filters, true)

	if filters.StartDate != nil {
		q = q.Where("created_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		q = q.Where("created_at <= ?", *filters.EndDate)
	}

	q = q.Order("created_at DESC").Order("id DESC")

	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		q = q.Offset(filters.Offset)
	}

	var gens []ImageGeneration
	if err := q.Find(&gens).Error; err != nil {
		return nil, dbError(err, "list-generations",
			"limit", filters.Limit,
			"offset", filters.Offset)
	}
	return gens, nil
}

func (r *generationRepository) Count(ctx context.Context, filters GenerationFilters) (int64, error) {
	var total int64
	if err := applyOwnerFilters(r.model(ctx), filters, true).Count(&total).Error; err != nil {
		return 0, dbError(err, "count-generations")
	}
	return total, nil
}

func (r *generationRepository) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&ImageGeneration{})
	if result.Error != nil {
		return false, dbError(result.Error, "delete-generation", "generation_id", id)
	}
	return result.RowsAffected > 0, nil
}

// statsRow receives the aggregate query; SUM and AVG are NULL on an empty table
type statsRow struct {
	Total      int64
	Successful sql.NullInt64
	Failed     sql.NullInt64
	AvgMs      sql.NullFloat64
}

func (r *generationRepository) Stats(ctx context.Context, filters GenerationFilters) (GenerationStats, error) {
	var row statsRow
	err := applyOwnerFilters(r.model(ctx), filters, false).
		Select(`COUNT(*) AS total,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS successful,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
			AVG(CASE WHEN status = ? THEN generation_time_ms END) AS avg_ms`,
			StatusSuccess, StatusFailed, StatusSuccess).
		Scan(&row).Error
	if err != nil {
		return GenerationStats{}, dbError(err, "generation-stats")
	}

	return GenerationStats{
		Total:                   row.Total,
		Successful:              row.Successful.Int64,
		Failed:                  row.Failed.Int64,
		AverageGenerationTimeMs: row.AvgMs.Float64,
	}, nil
}
