package admins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"noorulfityan_backend/internals/features/users/user/model"
	"noorulfityan_backend/internals/features/users/user/repository"
)

type AdminSeed struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// SeedAdminsFromJSON makes sure every listed account exists with the admin
// role. Existing users are promoted, never duplicated.
func SeedAdminsFromJSON(db *gorm.DB, filePath string) error {
	log.Println("[INFO] reading admin seed file:", filePath)

	file, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}

	var seeds []AdminSeed
	if err := json.Unmarshal(file, &seeds); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}

	ctx := context.Background()
	repo := repository.NewUserRepository(db)

	created, promoted := 0, 0
	for _, s := range seeds {
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if email == "" {
			log.Println("[WARN] admin seed without email skipped")
			continue
		}

		existing, err := repo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if existing.IsAdmin() {
				continue
			}
			if err := repo.Update(ctx, existing.ID, map[string]any{"role": model.RoleAdmin}); err != nil {
				return fmt.Errorf("promote %s: %w", email, err)
			}
			promoted++
		case errors.Is(err, gorm.ErrRecordNotFound):
			u := model.UserModel{Email: email, Role: model.RoleAdmin}
			if name := strings.TrimSpace(s.Name); name != "" {
				u.Name = &name
			}
			if phone := strings.TrimSpace(s.Phone); phone != "" {
				u.Phone = &phone
			}
			if err := repo.Create(ctx, &u); err != nil {
				return fmt.Errorf("create %s: %w", email, err)
			}
			created++
		default:
			return fmt.Errorf("lookup %s: %w", email, err)
		}
	}

	log.Printf("[INFO] admin seed done: %d created, %d promoted", created, promoted)
	return nil
}
