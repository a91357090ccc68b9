package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	certificateVerifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewcert_certificate_verifications", Help: "Certificates moved to verified",
	})
	certificateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewcert_certificate_rejections", Help: "Certificates moved to rejected",
	})
	documentUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewcert_document_uploads", Help: "Certificate documents stored",
	})
	requestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewcert_requests_sent", Help: "Certificate request emails sent",
	})
	reportBuilds = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "crewcert_report_build", Help: "Vessel compliance report builds",
	})
)
