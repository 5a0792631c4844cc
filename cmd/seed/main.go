// The seed binary loads a small demo dataset: two providers with a week of
// schedules, a mix of resolved and upcoming appointments, and one recall
// sequence. Intended for local development against a migrated database.
package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/clinicpulse/schedule-engine/internal/recall"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	providers := []uuid.UUID{uuid.New(), uuid.New()}
	patients := make([]uuid.UUID, 6)
	for i := range patients {
		patients[i] = uuid.New()
	}

	today := schedule.DateOf(time.Now().UTC())

	// A week of 9-17 working days per provider.
	for _, providerID := range providers {
		for offset := 0; offset < 7; offset++ {
			day := today.AddDate(0, 0, offset)
			if _, err := pool.Exec(ctx, `
				INSERT INTO provider_schedules (provider_id, date, work_start, work_end)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (provider_id, date) DO NOTHING`,
				providerID, day, day.Add(9*time.Hour), day.Add(17*time.Hour)); err != nil {
				log.Fatalf("seed schedule: %v", err)
			}
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO provider_appointment_types (provider_id, appointment_type_id)
			VALUES ($1, 'consult'), ($1, 'followup')
			ON CONFLICT DO NOTHING`, providerID); err != nil {
			log.Fatalf("seed appointment types: %v", err)
		}
	}

	// Resolved history: patient 0 is a chronic no-show, the rest reliable.
	for i, patientID := range patients {
		for back := 1; back <= 5; back++ {
			start := today.AddDate(0, 0, -back*30).Add(10 * time.Hour)
			status := schedule.StatusCompleted
			if i == 0 && back <= 3 {
				status = schedule.StatusNoShow
			}
			if err := insertAppointment(ctx, pool, patientID, providers[i%len(providers)], start, 30, status, "consult"); err != nil {
				log.Fatalf("seed history: %v", err)
			}
		}
	}

	// Upcoming bookings leave a mid-morning gap on day one.
	for i, patientID := range patients[:4] {
		start := today.AddDate(0, 0, 1).Add(time.Duration(9+i*2) * time.Hour)
		if err := insertAppointment(ctx, pool, patientID, providers[0], start, 60, schedule.StatusBooked, "consult"); err != nil {
			log.Fatalf("seed upcoming: %v", err)
		}
	}

	seq, err := recall.NewSequence("6-month consult recall", []string{"consult"}, 180, []recall.Step{
		{StepNumber: 1, Type: recall.StepEmail, DaysFromStart: 0, ContentRef: "recall/consult/email-1"},
		{StepNumber: 2, Type: recall.StepSMS, DaysFromStart: 3, ContentRef: "recall/consult/sms-1"},
		{StepNumber: 3, Type: recall.StepCall, DaysFromStart: 7, ContentRef: "recall/consult/call-script"},
	}, 3, true)
	if err != nil {
		log.Fatalf("build sequence: %v", err)
	}
	if err := recall.NewStore(pool).CreateSequence(ctx, seq); err != nil {
		log.Fatalf("seed sequence: %v", err)
	}

	log.Printf("seeded %d providers, %d patients, sequence %s", len(providers), len(patients), seq.ID)
}

func insertAppointment(ctx context.Context, pool *pgxpool.Pool, patientID, providerID uuid.UUID, start time.Time, minutes int, status schedule.AppointmentStatus, appointmentType string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, start_time, end_time, status, appointment_type_id, is_telehealth, booked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`,
		uuid.New(), patientID, providerID, start, start.Add(time.Duration(minutes)*time.Minute),
		string(status), appointmentType, start.AddDate(0, 0, -7))
	return err
}
