package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/muhzee733/madical-erp-backend/internal/appointment"
	"github.com/muhzee733/madical-erp-backend/internal/config"
	"github.com/muhzee733/madical-erp-backend/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	repo := appointment.NewPgRepository(pool)
	cfg := config.Config{PendingTTL: 15 * time.Minute, CancelCutoff: 60 * time.Minute}
	// Slot publishing never touches the booking lock.
	svc := appointment.NewService(repo, nil, cfg)

	if err := seedSlotGrids(ctx, svc, 20); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

// seedSlotGrids publishes two weeks of weekday slot grids for a handful of
// fake doctors, alternating short and long slot kinds.
func seedSlotGrids(ctx context.Context, svc *appointment.Service, doctors int) error {
	log.Printf("seeding slot grids for %d doctors", doctors)

	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}

	today := time.Now()
	total := 0

	for i := 0; i < doctors; i++ {
		doctorID := uuid.New()
		admin := appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin}

		kind := appointment.SlotShort
		if i%2 == 1 {
			kind = appointment.SlotLong
		}

		created, err := svc.CreateSlotsBulk(ctx, admin, doctorID, appointment.BulkSlotSpec{
			From:     today,
			To:       today.AddDate(0, 0, 14),
			Weekdays: weekdays,
			DayStart: "09:00",
			DayEnd:   "17:00",
			Kind:     kind,
		})
		if err != nil {
			return err
		}

		total += len(created)
		log.Printf("doctor %s (Dr. %s): %d %s slots", doctorID, gofakeit.LastName(), len(created), kind)
	}

	log.Printf("seeded %d slots", total)
	return nil
}
