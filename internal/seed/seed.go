// Package seed creates demo accounts and meal logs for development and testing.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"dietlog/internal/middleware"
	"dietlog/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account gets.
const DefaultPassword = "password123"

// Options controls how much data the seeder creates.
type Options struct {
	Users        int     `yaml:"users"`
	MealsPerUser int     `yaml:"mealsPerUser"`
	MaxDays      int     `yaml:"maxDays"`
	OnDietRatio  float64 `yaml:"onDietRatio"`
	Password     string  `yaml:"password"`
	Clean        bool    `yaml:"clean"`
	// SkipBcrypt hashes with the minimum cost. Only for tests.
	SkipBcrypt bool `yaml:"-"`
	// Seed makes fake data deterministic when non-zero.
	Seed int64 `yaml:"seed"`
}

// DefaultOptions returns the options used when no flag or preset overrides them.
func DefaultOptions() Options {
	return Options{
		Users:        10,
		MealsPerUser: 20,
		MaxDays:      30,
		OnDietRatio:  0.7,
		Password:     DefaultPassword,
		Clean:        true,
	}
}

// LoadPreset reads options from a YAML file. Missing keys keep their defaults.
func LoadPreset(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(raw)
}

// ParsePreset decodes YAML preset bytes on top of DefaultOptions.
func ParsePreset(raw []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("parse preset: %w", err)
	}
	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.Users < 0 || o.MealsPerUser < 0 {
		return fmt.Errorf("users and mealsPerUser must not be negative")
	}
	if o.OnDietRatio < 0 || o.OnDietRatio > 1 {
		return fmt.Errorf("onDietRatio must be between 0 and 1, got %v", o.OnDietRatio)
	}
	if len(o.Password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

// Seeder writes demo data through a gorm handle.
type Seeder struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
	fake *gofakeit.Faker
}

// NewSeeder creates a seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	return &Seeder{
		db:   db,
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
		fake: gofakeit.New(seed),
	}
}

// ClearAll removes every meal and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Meal{}).Error; err != nil {
			return fmt.Errorf("clear meals: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("clear users: %w", err)
		}
		return nil
	})
}

// Run creates the configured verified users and their meals.
func (s *Seeder) Run(ctx context.Context) ([]models.User, error) {
	if err := s.opts.validate(); err != nil {
		return nil, err
	}
	if s.opts.Clean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, err
		}
	}

	hash, err := s.hashPassword()
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		users = append(users, s.BuildUser(i, hash))
	}
	if len(users) == 0 {
		return users, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&users, 100).Error; err != nil {
			return fmt.Errorf("create users: %w", err)
		}
		for i := range users {
			meals := s.BuildMeals(users[i].ID, s.opts.MealsPerUser)
			if len(meals) == 0 {
				continue
			}
			if err := tx.CreateInBatches(&meals, 100).Error; err != nil {
				return fmt.Errorf("create meals for %s: %w", users[i].Email, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		"users", len(users),
		"meals_per_user", s.opts.MealsPerUser,
	)
	return users, nil
}

// BuildUser returns an unsaved verified user. The email is unique per index.
func (s *Seeder) BuildUser(index int, passwordHash string) models.User {
	first := s.fake.FirstName()
	last := s.fake.LastName()
	local := strings.ToLower(fmt.Sprintf("%s.%s.%d", first, last, index))
	local = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, local)

	return models.User{
		Name:          first + " " + last,
		Email:         local + "@example.com",
		Password:      passwordHash,
		EmailVerified: true,
	}
}

// BuildMeals returns n unsaved meals for userID, oldest first, spread over MaxDays.
func (s *Seeder) BuildMeals(userID string, n int) []models.Meal {
	meals := make([]models.Meal, 0, n)
	now := time.Now().UTC()
	span := time.Duration(s.opts.MaxDays) * 24 * time.Hour
	for i := 0; i < n; i++ {
		offset := span - time.Duration(i)*span/time.Duration(n)
		eaten := now.Add(-offset).Truncate(time.Millisecond)

		var description *string
		if s.rng.Intn(3) > 0 {
			d := s.fake.Sentence(8)
			description = &d
		}

		meals = append(meals, models.Meal{
			Name:        s.fake.Dinner(),
			Description: description,
			Date:        eaten,
			IsOnDiet:    s.rng.Float64() < s.opts.OnDietRatio,
			UserID:      userID,
			CreatedAt:   eaten,
			UpdatedAt:   eaten,
		})
	}
	return meals
}

func (s *Seeder) hashPassword() (string, error) {
	cost := bcrypt.DefaultCost
	if s.opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.opts.Password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
