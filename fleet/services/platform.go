package services

import (
	"log"
	"net/http"
	"os"

	"crewcert/fleet/auth"
	"crewcert/fleet/jobs"
	"crewcert/fleet/mailer"
	"crewcert/fleet/storage"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Platform wires the service surface together. Everything except the upload
// portal sits behind the identity provider's auth middleware.
type Platform struct {
	user            UserService
	vessel          VesselService
	role            RoleService
	certificateType CertificateTypeService
	matrix          MatrixService
	crew            CrewService
	certificate     CertificateService
	request         RequestService
	upload          UploadService
	dashboard       DashboardService

	db *gorm.DB
}

func NewPlatform(
	db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider,
	mail mailer.Mailer, extraction *jobs.ExtractionRunner, publicUrl string,
) Platform {
	requests := RequestService{db: db, userAuth: userAuth, mailer: mail, publicUrl: publicUrl}

	return Platform{
		user:            UserService{db: db, userAuth: userAuth},
		vessel:          VesselService{db: db, userAuth: userAuth, requests: &requests},
		role:            RoleService{db: db, userAuth: userAuth},
		certificateType: CertificateTypeService{db: db, userAuth: userAuth},
		matrix:          MatrixService{db: db, userAuth: userAuth},
		crew:            CrewService{db: db, userAuth: userAuth},
		certificate:     CertificateService{db: db, userAuth: userAuth, store: store, extraction: extraction},
		request:         requests,
		upload:          UploadService{db: db, store: store},
		dashboard:       DashboardService{db: db, userAuth: userAuth},
		db:              db,
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/vessel", p.vessel.Routes())
	r.Mount("/role", p.role.Routes())
	r.Mount("/certificate-type", p.certificateType.Routes())
	r.Mount("/matrix", p.matrix.Routes())
	r.Mount("/crew", p.crew.Routes())
	r.Mount("/certificate", p.certificate.Routes())
	r.Mount("/request", p.request.Routes())
	r.Mount("/upload", p.upload.Routes())
	r.Mount("/dashboard", p.dashboard.Routes())

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
