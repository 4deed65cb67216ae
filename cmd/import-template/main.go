package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

func main() {
	var (
		enroll string
		examID string
		dryRun bool
	)
	flag.StringVar(&enroll, "enroll", "", "Comma-separated student IDs to enroll for the imported exam")
	flag.StringVar(&examID, "exam", "", "Exam ID students enroll for (defaults to the template ID)")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate templates without writing them")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: import-template [flags] <template.yaml|template.json>...")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// ─── Parse & Validate ──────────────────────────────────────────────
	var templates []*model.ExamTemplate
	for _, path := range flag.Args() {
		tpl, err := loadTemplate(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to load template")
		}
		// A trial realization catches structural errors before anything is stored.
		if _, err := tpl.Realize(1, time.Now()); err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Template does not realize")
		}
		templates = append(templates, tpl)
		log.Info().Str("file", path).Str("template_id", tpl.ID).Msg("Template validated")
	}
	if dryRun {
		log.Info().Int("templates", len(templates)).Msg("Dry run complete")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	templateRepo := repository.NewTemplateRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)

	// ─── Store Templates ───────────────────────────────────────────────
	for _, tpl := range templates {
		if err := templateRepo.Upsert(ctx, tpl); err != nil {
			log.Fatal().Err(err).Str("template_id", tpl.ID).Msg("Failed to store template")
		}
		log.Info().Str("template_id", tpl.ID).Str("title", tpl.Title).Msg("Template stored")
	}

	// ─── Enroll Students ───────────────────────────────────────────────
	students := splitList(enroll)
	if len(students) == 0 {
		return
	}
	// Students enroll for -exam and are served the last imported template.
	served := templates[len(templates)-1].ID
	if examID == "" {
		examID = served
	}

	enrolled := 0
	for _, studentID := range students {
		if err := enrollmentRepo.Enroll(ctx, studentID, examID, served); err != nil {
			log.Error().Err(err).Str("student_id", studentID).Msg("Failed to enroll student")
			continue
		}
		enrolled++
	}
	log.Info().
		Str("exam_id", examID).
		Str("served_as", served).
		Int("enrolled", enrolled).
		Int("requested", len(students)).
		Msg("Enrollment complete")
}

func loadTemplate(path string) (*model.ExamTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var tpl model.ExamTemplate
		if err := json.Unmarshal(data, &tpl); err != nil {
			return nil, fmt.Errorf("decode template json: %w", err)
		}
		if tpl.ID == "" {
			return nil, fmt.Errorf("%w: template id is required", model.ErrTemplateInvalid)
		}
		return &tpl, nil
	}
	return model.ParseTemplateYAML(data)
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
