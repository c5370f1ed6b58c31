package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorhive/scheduling-engine/internal/db"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
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

	tutorIDs, err := seedTutors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed tutors: %v", err)
	}
	if err := seedStudents(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed students: %v", err)
	}
	if err := seedSlots(context.Background(), pool, tutorIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedTutors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d tutors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO tutors (id, name, email, is_blocked, created_at, updated_at)
			VALUES ($1, $2, $3, false, now(), now())
		`, id, name, email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("tutors seeded")
	return ids, nil
}

func seedStudents(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d students", count)

	const batchSize = 500

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
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO students (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("students seeded")
	return nil
}

// seedSlots opens two weeks of weekday slots per tutor, on the half hour
// between 09:00 and 17:00 UTC.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, tutorIDs []uuid.UUID) error {
	log.Printf("seeding slots for %d tutors", len(tutorIDs))

	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, tutorID := range tutorIDs {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for d := 1; d <= 14; d++ {
			day := today.AddDate(0, 0, d)
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			for hour := 9; hour < 17; hour++ {
				for _, minute := range []int{0, 30} {
					startAt := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
					_, err := tx.Exec(ctx, `
						INSERT INTO time_slots (id, tutor_id, start_at, duration_min, status, recurring, created_at, updated_at)
						VALUES ($1, $2, $3, $4, 'open', false, now(), now())
						ON CONFLICT (tutor_id, start_at) DO NOTHING
					`, uuid.New(), tutorID, startAt, schedule.SessionMinutes)
					if err != nil {
						_ = tx.Rollback(ctx)
						return err
					}
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("slots seeded")
	return nil
}
