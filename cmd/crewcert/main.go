package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"crewcert/fleet/auth"
	"crewcert/fleet/mailer"
	"crewcert/fleet/ocr"
	"crewcert/fleet/schema"
	"crewcert/fleet/seed"
	"crewcert/fleet/services"
	"crewcert/fleet/storage"

	"crewcert/fleet/jobs"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	slogmulti "github.com/samber/slog-multi"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

/**
 * ==========================================================================
 * ==== All variables used by the server must be loaded here. This is to ====
 * ==== make the data flow clear so that a user can see what variables   ====
 * ==== are exposed, and how the values are propagated through the       ====
 * ==== system.                                                          ====
 * ==========================================================================
 */
type crewcertEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	ShareDir    string `env:"SHARE_DIR,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`

	// Public origin used in the upload links mailed to crew.
	PublicUrl string `env:"PUBLIC_URL,required"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	SendgridApiKey string `env:"SENDGRID_API_KEY"`
	MailFromName   string `env:"MAIL_FROM_NAME" envDefault:"Fleet Compliance"`
	MailFromAddr   string `env:"MAIL_FROM_ADDRESS"`

	GeminiApiKey string `env:"GEMINI_API_KEY"`

	SeedFile string `env:"SEED_FILE"`
}

func loadEnv() crewcertEnv {
	cfg := crewcertEnv{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
	return cfg
}

func (e *crewcertEnv) postgresDsn() string {
	parts, err := url.Parse(e.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	jsonHandler := slog.NewJSONHandler(logFile, nil)
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	slog.SetDefault(slog.New(slogmulti.Fanout(jsonHandler, textHandler)))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Vessel{}, &schema.Role{}, &schema.CertificateType{},
		&schema.MatrixRequirement{}, &schema.CrewMember{}, &schema.Certificate{},
		&schema.CertificateRequest{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}
	cfg := loadEnv()

	if err := os.MkdirAll(filepath.Join(cfg.ShareDir, "logs"), 0777); err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/crewcert.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(cfg.postgresDsn())

	if cfg.SeedFile != "" {
		seedFile, err := seed.Load(cfg.SeedFile)
		if err != nil {
			log.Fatalf("error loading seed file: %v", err)
		}
		if err := seed.Apply(db, seedFile); err != nil {
			log.Fatalf("error applying seed file: %v", err)
		}
	}

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(cfg.JwtSecret),
			AdminUsername: cfg.AdminUsername,
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	documentStore := storage.NewSharedDisk(cfg.ShareDir)
	slog.Info("document storage initialized", "location", documentStore.Location())

	var mail mailer.Mailer
	if cfg.SendgridApiKey != "" {
		mail = mailer.NewSendgridMailer(cfg.SendgridApiKey, cfg.MailFromName, cfg.MailFromAddr)
	} else {
		slog.Warn("SENDGRID_API_KEY not set, outbound email is disabled")
		mail = mailer.Discard{}
	}

	var extractor ocr.Extractor
	if cfg.GeminiApiKey != "" {
		extractor = ocr.NewGeminiExtractor(cfg.GeminiApiKey)
	} else {
		slog.Warn("GEMINI_API_KEY not set, document extraction is disabled")
		extractor = ocr.Disabled{}
	}

	extraction := jobs.NewExtractionRunner(db, documentStore, extractor)
	platform := services.NewPlatform(db, documentStore, identityProvider, mail, extraction, cfg.PublicUrl)

	scheduler := cron.New()
	digest := jobs.NewExpiryDigest(db, mail)
	if err := digest.Schedule(scheduler); err != nil {
		log.Fatalf("error scheduling expiry digest: %v", err)
	}
	if err := extraction.Schedule(scheduler); err != nil {
		log.Fatalf("error scheduling extraction reclaim sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Mount("/api/v1", platform.Routes())

	addr := fmt.Sprintf("0.0.0.0:%d", *port)
	slog.Info("starting server", "addr", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
