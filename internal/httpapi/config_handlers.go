package httpapi

import (
	"net/http"

	"internwatch/internal/config"
)

type ConfigHandler struct {
	Current func() config.Config
}

// Get returns the effective config with secrets masked.
func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Current().Redacted())
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := config.NormalizeAndValidate(h.Current())
	WriteJSON(w, http.StatusOK, vr)
}
