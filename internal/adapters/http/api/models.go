package api

import (
	"net/http"
)

// ModelsHandler serves the model catalog.
type ModelsHandler struct {
	deps Dependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps Dependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// HandleGetModels handles GET /models requests.
func (h *ModelsHandler) HandleGetModels(w http.ResponseWriter, r *http.Request) {
	const op = "api.models"
	ov, err := h.deps.Overview(r.Context())
	if err != nil {
		writeServiceError(w, op, WrapKind(op, ErrUpstream, err))
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
