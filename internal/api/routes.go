package api

import (
	"net/http"

	"github.com/auditstack/attest/internal/config"
	"github.com/auditstack/attest/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	routes.Register(
		mux,
		domain.Organizations.Handler().Routes(),
		domain.Controls.Handler().Routes(),
		domain.Evidence.Handler(cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Classifier.Routes(),
		domain.Tasks.Handler().Routes(),
		domain.Provenance.Handler().Routes(),
		runtime.Queue.Handler().Routes(),
	)
}
