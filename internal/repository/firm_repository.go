package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type FirmRepository struct {
	db *gorm.DB
}

func NewFirmRepository(db *gorm.DB) *FirmRepository {
	return &FirmRepository{db: db}
}

func (r *FirmRepository) Create(firm *model.Firm) error {
	if err := r.db.Create(firm).Error; err != nil {
		return fmt.Errorf("create firm failed: %w", err)
	}
	return nil
}

func (r *FirmRepository) GetByID(id uint) (*model.Firm, error) {
	var firm model.Firm
	if err := r.db.First(&firm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query firm by id failed: %w", err)
	}
	return &firm, nil
}

func (r *FirmRepository) GetByCode(code string) (*model.Firm, error) {
	var firm model.Firm
	if err := r.db.Where("code = ?", code).First(&firm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query firm by code failed: %w", err)
	}
	return &firm, nil
}

func (r *FirmRepository) List() ([]model.Firm, error) {
	var firms []model.Firm
	if err := r.db.Order("name ASC").Find(&firms).Error; err != nil {
		return nil, fmt.Errorf("list firms failed: %w", err)
	}
	return firms, nil
}
