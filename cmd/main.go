package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/solacehq/solace-server/cmd/api"
	"github.com/solacehq/solace-server/cmd/models"
	"github.com/solacehq/solace-server/db"
	"github.com/solacehq/solace-server/service/appointment"
	"gorm.io/gorm"
)

func main() {
	// Check for command-line arguments
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	// Start the server
	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {

	migrations := map[interface{}]string{
		&models.User{}:               "User",
		&models.Counsellor{}:         "Counsellor",
		&models.WeeklyAvailability{}: "WeeklyAvailability",
		&models.Appointment{}:        "Appointment",
		&models.PaymentSettings{}:    "PaymentSettings",
		&models.CounsellorMargin{}:   "CounsellorMargin",
		&models.WithdrawalRequest{}:  "WithdrawalRequest",
		&models.Transaction{}:        "Transaction",
		&models.Device{}:             "Device",
		&models.NotificationHistory{}: "NotificationHistory",
		&models.SessionResource{}:    "SessionResource",
		&models.PasswordResetToken{}: "PasswordResetToken",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	// Seed the global margin row if it does not exist yet
	var settings models.PaymentSettings
	if err := DB.First(&settings).Error; err != nil {
		if err := DB.Create(&models.PaymentSettings{GlobalMargin: 20}).Error; err != nil {
			return fmt.Errorf("error seeding payment settings: %w", err)
		}
		log.Println("Seeded default payment settings")
	}

	log.Println("All migrations completed successfully")
	return nil
}

func startServer() {
	// Initialize database connection
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	// Graceful shutdown setup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Mark confirmed appointments completed once their end time passes
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := appointment.SweepCompleted(DB, time.Now())
				if err != nil {
					log.Printf("Sweep error: %v", err)
				} else if n > 0 {
					log.Printf("Sweep marked %d appointments completed", n)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	// Start the API server
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	close(sweepDone)
	log.Println("Shutting down server...")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		// Default: Drop all tables
		tables = []interface{}{
			&models.SessionResource{},
			&models.NotificationHistory{},
			&models.Device{},
			&models.Transaction{},
			&models.WithdrawalRequest{},
			&models.CounsellorMargin{},
			&models.PaymentSettings{},
			&models.Appointment{},
			&models.WeeklyAvailability{},
			&models.PasswordResetToken{},
			&models.Counsellor{},
			&models.User{},
		}
	}

	log.Println("Dropping tables...")

	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		tableList := splitTableNames(tableNames)
		for _, table := range tableList {
			switch strings.TrimSpace(table) {
			case "User":
				tables = append(tables, &models.User{})
			case "Counsellor":
				tables = append(tables, &models.Counsellor{})
			case "WeeklyAvailability":
				tables = append(tables, &models.WeeklyAvailability{})
			case "Appointment":
				tables = append(tables, &models.Appointment{})
			case "PaymentSettings":
				tables = append(tables, &models.PaymentSettings{})
			case "CounsellorMargin":
				tables = append(tables, &models.CounsellorMargin{})
			case "WithdrawalRequest":
				tables = append(tables, &models.WithdrawalRequest{})
			case "Transaction":
				tables = append(tables, &models.Transaction{})
			case "Device":
				tables = append(tables, &models.Device{})
			case "NotificationHistory":
				tables = append(tables, &models.NotificationHistory{})
			case "SessionResource":
				tables = append(tables, &models.SessionResource{})
			case "PasswordResetToken":
				tables = append(tables, &models.PasswordResetToken{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}

	log.Println("Database cleared successfully")
}

func splitTableNames(tableNames string) []string {
	return strings.Split(tableNames, ",")
}
