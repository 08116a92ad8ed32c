package config

import (
	"log"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/pkg/password"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// Run executes all seeders. Dev mode only: production identities come from
// the company identity provider.
func (s *Seeder) Run() error {
	log.Println("🌱 Running database seeders...")

	if err := s.seedUsers(); err != nil {
		log.Printf("⚠️ User seeder skipped: %v", err)
	}
	if err := s.seedWorks(); err != nil {
		log.Printf("⚠️ Work seeder skipped: %v", err)
	}

	log.Println("✅ Database seeding completed")
	return nil
}

// seedUsers seeds one user per role so every workflow leg can be exercised
func (s *Seeder) seedUsers() error {
	var count int64
	s.db.Model(&models.User{}).Count(&count)
	if count > 0 {
		return nil // Already seeded
	}

	hashed, err := password.Hash("devpass12345")
	if err != nil {
		return err
	}

	users := []models.User{
		{Username: "somchai", FullName: "Somchai Jaidee", Password: hashed, Role: "EMPLOYEE", IsActive: true},
		{Username: "pranee", FullName: "Pranee Suksawat", Password: hashed, Role: "EMPLOYEE", IsActive: true},
		{Username: "director", FullName: "Wichai Thongdee", Password: hashed, Role: "DIRECTOR", IsActive: true},
		{Username: "admin", FullName: "System Admin", Password: hashed, Role: "ADMIN", IsActive: true},
	}

	if err := s.db.Create(&users).Error; err != nil {
		return err
	}

	log.Printf("✅ Seeded %d users", len(users))
	return nil
}

// seedWorks seeds a few projects so typed requests have something to point at
func (s *Seeder) seedWorks() error {
	var count int64
	s.db.Model(&models.Work{}).Count(&count)
	if count > 0 {
		return nil // Already seeded
	}

	works := []models.Work{
		{Code: "W-2026-001", Name: "Warehouse network refresh", Customer: "Thanapat Logistics", IsActive: true},
		{Code: "W-2026-002", Name: "POS rollout phase 2", Customer: "Baan Suan Retail", IsActive: true},
		{Code: "W-2026-003", Name: "CCTV maintenance contract", Customer: "Siri Tower", IsActive: true},
	}

	if err := s.db.Create(&works).Error; err != nil {
		return err
	}

	log.Printf("✅ Seeded %d works", len(works))
	return nil
}
