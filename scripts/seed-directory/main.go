// Seeds the resident directory from a JSON file.
//
// Usage: go run ./scripts/seed-directory testdata/residents.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/porteroai/portero/internal/directory"
)

type seedFile struct {
	Condominium string         `json:"condominium"`
	Residents   []seedResident `json:"residents"`
}

type seedResident struct {
	FullName    string `json:"full_name"`
	Apartment   string `json:"apartment"`
	Phone       string `json:"phone"`
	Blacklisted bool   `json:"blacklisted"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-directory <residents-file.json>")
		os.Exit(1)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("DATABASE_URL is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("read file: %v\n", err)
		os.Exit(1)
	}
	var file seedFile
	if err := json.Unmarshal(data, &file); err != nil {
		fmt.Printf("parse file: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Printf("connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := directory.NewPgRepository(pool)
	fmt.Printf("Seeding %d residents (%s)\n", len(file.Residents), file.Condominium)
	for _, r := range file.Residents {
		id, err := repo.Upsert(ctx, directory.Resident{
			FullName:    r.FullName,
			Apartment:   r.Apartment,
			Phone:       r.Phone,
			Blacklisted: r.Blacklisted,
		})
		if err != nil {
			fmt.Printf("  FAIL %s: %v\n", r.FullName, err)
			os.Exit(1)
		}
		fmt.Printf("  ok %s (apt %s) %s\n", r.FullName, r.Apartment, id)
	}
	fmt.Println("done")
}
