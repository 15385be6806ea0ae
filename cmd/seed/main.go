package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-backend/internal/auth"
	"github.com/clinicdesk/appointment-backend/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAdmin(context.Background(), pool); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) error {
	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@clinic.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("ADMIN_PASSWORD not set, using default dev password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, now(), now())
		ON CONFLICT (email) DO NOTHING
	`, uuid.New(), email, hash)
	if err != nil {
		return err
	}

	log.Printf("admin user ready: %s", email)
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	// All seeded patients share one password so dev logins are easy.
	hash, err := auth.HashPassword("patient123")
	if err != nil {
		return err
	}

	const batchSize = 50

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			birth := gofakeit.DateRange(
				time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2007, 12, 31, 0, 0, 0, 0, time.UTC),
			)
			address := gofakeit.Address().Address

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, national_id, birth_date, address,
					password_hash, email_verified, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(),
				gofakeit.SSN(), birth, address, hash)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
