// services/category_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"event-registration-system/models"

	"gorm.io/gorm"
)

type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type CategoryService struct {
	DB *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{DB: db}
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	cats := []models.Category{}
	err := s.DB.WithContext(ctx).Order("name").Find(&cats).Error
	return cats, err
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	cat := models.Category{Name: strings.TrimSpace(in.Name), Description: in.Description}
	if err := s.DB.WithContext(ctx).Create(&cat).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *CategoryService) Update(ctx context.Context, id uint, in CategoryInput) (*models.Category, error) {
	db := s.DB.WithContext(ctx)
	var cat models.Category
	if err := db.First(&cat, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	cat.Name = strings.TrimSpace(in.Name)
	cat.Description = in.Description
	if err := db.Model(&cat).Select("name", "description").Updates(&cat).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

// Delete detaches the category from its events before removing it.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("category_id = ?", id).Delete(&models.EventCategory{})
		if res.Error != nil {
			return res.Error
		}
		res = tx.Delete(&models.Category{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCategoryNotFound
		}
		return nil
	})
}
