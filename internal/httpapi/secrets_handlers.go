package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal    *atomic.Value // stores config.Config
	SetSecret func(n secrets.Name, cfg config.Config, value string) error
}

type setSecretReq struct {
	Value string `json:"value"`
}

// Set stores /api/secrets/{name} in the OS keychain. The value is never echoed back.
func (h SecretsHandler) Set(w http.ResponseWriter, r *http.Request) {
	name, err := secrets.Parse(pathName(r, "/api/secrets/"))
	if err != nil {
		WriteError(w, r, http.StatusNotFound, "unknown_secret", err.Error())
		return
	}

	var req setSecretReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	set := h.SetSecret
	if set == nil {
		set = secrets.Set
	}
	cfg := h.CfgVal.Load().(config.Config)
	if err := set(name, cfg, req.Value); err != nil {
		WriteError(w, r, http.StatusBadRequest, "store_failed", "failed to store secret: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
