// Command bootstrap-dev grants the developer or admin role to an actor id
// directly in the datastore. Developer membership has no public endpoint,
// so new deployments seed the first developer with this tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"canaldir/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		actorID     int64
		role        string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.Int64Var(&actorID, "id", 0, "Actor id to grant the role to")
	flag.StringVar(&role, "role", "developer", "Role to grant (developer or admin)")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if actorID <= 0 {
		fatalf("--id must be a positive integer")
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "developer" && role != "admin" {
		fatalf("--role must be developer or admin")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := grant(ctx, jsonPath, postgresDSN, actorID, role); err != nil {
		fatalf("grant %s role: %v", role, err)
	}
	fmt.Printf("Actor %d granted the %s role.\n", actorID, role)
}

func grant(ctx context.Context, jsonPath, postgresDSN string, actorID int64, role string) error {
	if jsonPath != "" {
		store, err := storage.NewStorage(jsonPath)
		if err != nil {
			return err
		}
		if role == "developer" {
			return store.SeedDevelopers(actorID)
		}
		if err := store.AddAdmin(ctx, actorID); err != nil && !errors.Is(err, storage.ErrAdminExists) {
			return err
		}
		return nil
	}

	repo, err := storage.NewPostgresRepository(ctx, postgresDSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	if role == "developer" {
		return repo.SeedDeveloper(ctx, actorID)
	}
	if err := repo.AddAdmin(ctx, actorID); err != nil && !errors.Is(err, storage.ErrAdminExists) {
		return err
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
