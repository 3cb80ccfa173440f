package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/portalcapacita/api/internal/course"
	"github.com/portalcapacita/api/internal/db"
	"github.com/portalcapacita/api/internal/fees"
	"github.com/portalcapacita/api/internal/repo"
	"github.com/portalcapacita/api/internal/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "admin":
		staff := service.NewStaffService(repo.NewQueries(pool))
		if err := runAdmin(ctx, staff, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar usuário")
		}
	case "course":
		courses := course.NewRepository(pool)
		if err := runCourse(ctx, courses, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar curso")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "bootstrap CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  bootstrap admin --nome \"Fulano\" --email fulano@exemplo.gov.br --senha segredo123 [--papel ADMIN]")
	fmt.Fprintln(os.Stderr, "  bootstrap course --titulo \"Gestão Pública\" --slug gestao-publica --duration 30 --hours 120 [--modules-file modules.json]")
}

func runAdmin(ctx context.Context, staff *service.StaffService, args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		nome  = fs.String("nome", "", "nome exibido")
		email = fs.String("email", "", "email de acesso")
		senha = fs.String("senha", "", "senha inicial")
		papel = fs.String("papel", "ADMIN", "papel (ADMIN ou STAFF)")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nome == "" || *email == "" || *senha == "" {
		return errors.New("nome, email e senha são obrigatórios")
	}

	user, err := staff.CreateUser(ctx, *nome, *email, *papel, *senha, true)
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(user, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runCourse(ctx context.Context, courses *course.Repository, args []string) error {
	fs := flag.NewFlagSet("course", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		titulo      = fs.String("titulo", "", "título do curso")
		slug        = fs.String("slug", "", "slug público")
		duration    = fs.Int("duration", 0, "duração em dias")
		hours       = fs.Int("hours", 0, "carga horária")
		modulesFile = fs.String("modules-file", "", "arquivo JSON com a grade de módulos")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *titulo == "" || *slug == "" || *duration == 0 || *hours == 0 {
		return errors.New("titulo, slug, duration e hours são obrigatórios")
	}
	if !fees.Supported(*duration) {
		return fmt.Errorf("duração %d sem taxa definida (aceitas: %v)", *duration, fees.Durations())
	}

	var modules json.RawMessage
	if *modulesFile != "" {
		raw, err := os.ReadFile(*modulesFile)
		if err != nil {
			return fmt.Errorf("ler modules-file: %w", err)
		}
		var parsed []course.Module
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("parse modules-file: %w", err)
		}
		modules = raw
	}

	created, err := courses.Insert(ctx, course.SaveParams{
		Titulo:       strings.TrimSpace(*titulo),
		Slug:         strings.ToLower(strings.TrimSpace(*slug)),
		DurationDays: *duration,
		Hours:        *hours,
		Modules:      modules,
		Ativo:        true,
	})
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(created, "", "  ")
	fmt.Println(string(output))
	return nil
}
