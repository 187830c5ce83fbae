// seed inserts a verified demo user and a few appointments into the local
// dev database. Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/voice-scheduler/internal/password"
)

const (
	seedEmail    = "seed@test.local"
	seedPassword = "seed-password"
)

type appointmentSpec struct {
	name     string
	phone    string
	dayDelta int
	hour     int
	minutes  int
	notes    string
}

var appointments = []appointmentSpec{
	{"Dana Whitfield", "+1 555 0100", 1, 9, 30, "Initial consultation"},
	{"Marco Ruiz", "+1 555 0101", 1, 10, 60, "Follow-up"},
	// back-to-back with the previous one, which must not count as an overlap
	{"Aiko Tanaka", "", 1, 11, 45, ""},
	{"Priya Nair", "+44 20 7946 0000", 2, 14, 30, "Bring prior lab results"},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL, postgres.WithMaxConns(2), postgres.WithApplicationName("voice-scheduler-seed"))
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	users := postgres.NewUserRepository(pool)
	repo := postgres.NewAppointmentRepository(pool)

	user, err := users.FindByEmail(ctx, seedEmail)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		hash, salt, err := password.Hash(seedPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		user, err = users.Create(ctx, &domain.User{
			Email:           seedEmail,
			PasswordHash:    hash,
			PasswordSalt:    salt,
			IsEmailVerified: true,
		}, nil)
		if err != nil {
			log.Fatalf("create user: %v", err)
		}
	case err != nil:
		log.Fatalf("find user: %v", err)
	}

	existing, err := repo.ListByUserID(ctx, user.ID)
	if err != nil {
		log.Fatalf("list appointments: %v", err)
	}

	var inserted int
	if len(existing) == 0 {
		day := time.Now().UTC().Truncate(24 * time.Hour)
		for _, spec := range appointments {
			start := day.AddDate(0, 0, spec.dayDelta).Add(time.Duration(spec.hour) * time.Hour)
			minutes := spec.minutes
			if _, err := repo.Save(ctx, &domain.Appointment{
				UserID:          user.ID,
				Name:            spec.name,
				Phone:           spec.phone,
				StartsAt:        &start,
				DurationMinutes: &minutes,
				Notes:           spec.notes,
			}); err != nil {
				log.Fatalf("insert appointment for %s: %v", spec.name, err)
			}
			inserted++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  User:         %s / %s\n", seedEmail, seedPassword)
	fmt.Printf("  User ID:      %d\n", user.ID)
	fmt.Printf("  Appointments: %d inserted (%d already present)\n", inserted, len(existing))
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 - log in:")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/auth/login \\")
	fmt.Println("      -H 'Content-Type: application/json' \\")
	fmt.Printf("      -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", seedEmail, seedPassword)
	fmt.Println()
	fmt.Println("  Step 2 - list appointments:")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/appointments -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Step 3 - upload a recording:")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/UploadAudio \\")
	fmt.Println("      -H \"Authorization: Bearer $JWT\" -F file=@recording.m4a")
}
