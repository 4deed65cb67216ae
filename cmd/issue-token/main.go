package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		admin   bool
		subject string
		perms   string
	)
	flag.BoolVar(&admin, "admin", false, "Issue a proctor token instead of a student token")
	flag.StringVar(&subject, "id", "", "Student or proctor ID the token is issued to")
	flag.StringVar(&perms, "perm", string(model.PermissionSessionsRead), "Comma-separated proctor permissions")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.New(os.Stderr, cfg.LogLevel, "console")

	if subject == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		flag.Usage()
		os.Exit(2)
	}

	// The signing secret is read from the terminal when the environment
	// does not provide one, so it never lands in shell history.
	if _, ok := os.LookupEnv("JWT_SECRET"); !ok {
		fmt.Fprint(os.Stderr, "Enter JWT secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if len(secret) == 0 {
			log.Fatal().Msg("JWT secret is required")
		}
		cfg.JWTSecret = string(secret)
	}

	// ─── Issue Token ───────────────────────────────────────────────────
	authService := service.NewAuthService(cfg)

	var (
		token string
		err   error
	)
	if admin {
		token, err = authService.GenerateAdminToken(subject, parsePermissions(perms))
	} else {
		token, err = authService.GenerateStudentToken(subject)
	}
	if err != nil {
		log.Fatal().Err(err).Str("id", subject).Msg("Failed to issue token")
	}

	log.Info().
		Str("id", subject).
		Bool("admin", admin).
		Dur("expires_in", cfg.JWTExpiry).
		Msg("Token issued")
	fmt.Println(token)
}

func parsePermissions(list string) []model.Permission {
	var perms []model.Permission
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, model.Permission(p))
		}
	}
	return perms
}
