package httpapi

import "net/http"

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{}.Health,
	}))

	// Postings
	ph := PostingsHandler{Store: d.Store, Hub: d.Hub}
	mux.HandleFunc("/postings", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.List,
	}))
	mux.HandleFunc("/postings/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:   ph.Get,   // /postings/{id}
		http.MethodPatch: ph.Patch, // /postings/{id}
	}))
	mux.HandleFunc("/stats", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.Stats,
	}))
	mux.HandleFunc("/cover-letters/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.CoverLetter, // /cover-letters/{posting_id}
	}))

	// Batch
	bh := BatchHandler{Runner: d.Batch, Quota: d.Quota, Hub: d.Hub, BaseCtx: d.BaseCtx}
	mux.HandleFunc("/batch/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: bh.Run,
	}))
	mux.HandleFunc("/batch/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: bh.Status,
	}))
	mux.HandleFunc("/import/csv", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: bh.ImportCSV,
	}))
	mux.HandleFunc("/quota", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: bh.QuotaStatus,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
		Hub:         d.Hub,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal, SetSecret: d.SetSecret}
	mux.HandleFunc("/api/secrets/", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Set, // /api/secrets/{name}
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	dh := DBHandler{Store: d.Store}
	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dh.Checkpoint,
	}))

	return mux
}
