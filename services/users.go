// services/users.go
package services

import (
	"context"
	"strings"

	"event-registration-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// EnsureUser records the identity carried by an access token. Name and email
// are overwritten only when the token provides them.
func (s *UserService) EnsureUser(ctx context.Context, id, name, email string) error {
	if id == "" {
		return withMessage(ErrValidation, "user id is required")
	}
	user := models.User{ID: id, Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}

	updates := []string{"updated_at"}
	if user.Name != "" {
		updates = append(updates, "name")
	}
	if user.Email != "" {
		updates = append(updates, "email")
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&user).Error
}

// UpsertUsers mirrors a batch from the profile service and reports how many rows were written.
func (s *UserService) UpsertUsers(ctx context.Context, users []models.User) (int, error) {
	written := 0
	for i := range users {
		if users[i].ID == "" {
			continue
		}
		if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
		}).Create(&users[i]).Error; err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// SearchUsers matches name or email case-insensitively.
func (s *UserService) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	users := []models.User{}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Order("name").Limit(limit)
	if term := strings.TrimSpace(query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	err := db.Find(&users).Error
	return users, err
}
