package httpapi

import "net/http"

type HealthHandler struct {
	Version string
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"version": h.Version,
	})
}

type PollHandler struct {
	Poller Poller
}

func (h PollHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Poller.Status())
}

func (h PollHandler) Listings(w http.ResponseWriter, r *http.Request) {
	ls, err := h.Poller.Listings(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(ls),
		"listings": ls,
	})
}

// Run performs a cycle and answers once it is done.
func (h PollHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.Poller.Trigger(r.Context(), RequestIDFrom(r.Context()))
	if err != nil {
		WriteRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
