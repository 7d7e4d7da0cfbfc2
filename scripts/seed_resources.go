package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"retreat/internal/config"
	"retreat/internal/database"
	"retreat/internal/models"
	"retreat/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ResourcesConfig struct {
	Resources []models.Resource `yaml:"resources"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		resourcesPath = flag.String("resources", "configs/resources.yaml", "path to resources.yaml")
		dbPath        = flag.String("db", "./data/retreat.db", "path to sqlite db")
		members       []models.Credentials
	)
	flag.Func("member", "member account as email:password (repeatable)", func(v string) error {
		email, password, ok := strings.Cut(v, ":")
		if !ok || email == "" || password == "" {
			return errors.New("expected email:password")
		}
		members = append(members, models.Credentials{Email: email, Password: password})
		return nil
	})
	flag.Parse()

	data, err := os.ReadFile(*resourcesPath)
	if err != nil {
		return fmt.Errorf("read resources: %w", err)
	}
	var cfg ResourcesConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse resources: %w", err)
	}
	if len(cfg.Resources) == 0 {
		return fmt.Errorf("no resources in yaml")
	}
	if err = config.ValidateResources(cfg.Resources); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncResources(ctx, cfg.Resources); err != nil {
		return fmt.Errorf("sync resources: %w", err)
	}

	// секрет не нужен: токены здесь не выдаются
	memberService := service.NewMemberService(db, service.TokenSettings{}, &logger)
	created, skipped := 0, 0
	for i := range members {
		_, err = memberService.Register(ctx, &members[i])
		switch {
		case err == nil:
			created++
		case errors.Is(err, database.ErrAlreadyExists):
			skipped++
		default:
			return fmt.Errorf("register %s: %w", members[i].Email, err)
		}
	}

	fmt.Printf("done: resources=%d members_created=%d members_skipped=%d\n", len(cfg.Resources), created, skipped)
	return nil
}
