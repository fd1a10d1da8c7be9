// Package httpapi exposes the job management API over HTTP with chi.
//
//	GET    /jobs              text listing ({"message"}), ?format=json for jobs
//	POST   /jobs              {name, prompt, type, value, delete_after_run}
//	GET    /jobs/{id}         one job as JSON
//	PATCH  /jobs/{id}         {enabled?, name?}
//	DELETE /jobs/{id}
//	POST   /jobs/{id}/run     run now
//	GET    /grammar           accepted schedule values
//	GET    /status            scheduler snapshot
//	GET    /healthz
//	GET    /metrics           Prometheus metrics, when configured
//	/debug/pprof/*            when enabled
package httpapi
