package jobs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the sync job API. When protect is non-nil
// it wraps the cancel endpoint; the read endpoints stay public.
func Router(store *JobStore, protect func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/sync", ListJobsHandler(store))
	r.Get("/sync/{jobId}", GetJobHandler(store))

	var cancel http.Handler = CancelJobHandler(store)
	if protect != nil {
		cancel = protect(cancel)
	}
	r.Method(http.MethodPost, "/sync/{jobId}:cancel", cancel)

	return r
}
