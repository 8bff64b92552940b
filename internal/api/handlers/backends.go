package handlers

import (
	"net/http"

	"github.com/cognidex/cognidex/internal/api"
	"github.com/cognidex/cognidex/internal/registry"
)

// BackendsHandler exposes the operator-facing backend health snapshot.
type BackendsHandler struct {
	reg *registry.Registry
}

func NewBackendsHandler(reg *registry.Registry) *BackendsHandler {
	return &BackendsHandler{reg: reg}
}

func (h *BackendsHandler) List(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]any{"backends": h.reg.Snapshot()})
}
