// Bootstrap script that creates (or resets) the administrator account.
//
// Meant for first deployment, before any admin exists to manage accounts
// through the API.
//
// Usage: go run scripts/seed_admin.go -email admin@example.com -password <pw>

package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"presencia_backend/internal/config"
	"presencia_backend/internal/model"
	"presencia_backend/pkg/database"
	"presencia_backend/pkg/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	email := flag.String("email", "admin@example.com", "admin email")
	password := flag.String("password", "", "admin password (required)")
	name := flag.String("name", "Administrator", "admin display name")
	flag.Parse()

	if *password == "" {
		log.Fatal("-password is required")
	}
	if len(*password) < 8 {
		log.Fatal("password must be at least 8 characters")
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	var existing model.User
	err = db.Where("email = ?", *email).First(&existing).Error
	switch {
	case err == nil:
		existing.Password = string(hashed)
		existing.Role = model.Admin
		existing.Disabled = false
		if err := db.Save(&existing).Error; err != nil {
			log.Fatalf("Failed to update admin: %v", err)
		}
		log.Printf("Existing account %s promoted to admin", *email)
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now()
		admin := &model.User{
			Name:          *name,
			Email:         *email,
			Password:      string(hashed),
			Role:          model.Admin,
			CurrentState:  model.StateDesconectado,
			ChallengeTier: model.TierStandard,
			LastLogin:     now,
			LastActivity:  now,
		}
		if err := db.Create(admin).Error; err != nil {
			log.Fatalf("Failed to create admin: %v", err)
		}
		log.Printf("Admin account %s created", *email)
	default:
		log.Fatalf("Failed to query users: %v", err)
	}
}
