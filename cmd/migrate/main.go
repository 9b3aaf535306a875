package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
)

func main() {
	var (
		dbURLFlag string
		driver    string
		reset     bool
		status    bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&driver, "driver", "postgres", "Database driver: postgres or pgx")
	flag.BoolVar(&reset, "reset", false, "Truncate reservations and the seat ledger after migrating")
	flag.BoolVar(&status, "status", false, "Print the state of every migration and exit")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		Driver:             driver,
		MaxConnections:     2,
		MaxIdleConnections: 1,
		QueryTimeout:       10 * time.Second,
	}

	db, err := database.NewConnection(dbCfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if status {
		statuses, err := database.MigrationStatus(ctx, db.DB)
		if err != nil {
			log.Fatalf("status failed: %v", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("  %05d %-30s %s\n", st.Source.Version, st.Source.Path, applied)
		}
		return
	}

	applied, err := database.Migrate(ctx, db.DB, logger)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date.")
	} else {
		fmt.Printf("Applied %d migration(s):\n", len(applied))
		for _, name := range applied {
			fmt.Printf("  - %s\n", name)
		}
	}

	if !reset {
		return
	}

	fmt.Println("Truncating reservations and seat ledger...")
	if err := database.ResetReservations(ctx, db.DB); err != nil {
		log.Fatalf("reset failed: %v", err)
	}

	// Verify by printing row counts for each table
	fmt.Println("Post-reset row counts:")
	for _, table := range []string{"reservations", "seat_allocations"} {
		var count int
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table); err != nil {
			fmt.Printf("  %s: error: %v\n", table, err)
			continue
		}
		fmt.Printf("  %s: %d\n", table, count)
	}
}
