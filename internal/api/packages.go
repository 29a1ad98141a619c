package api

import (
	"net/http"

	"github.com/snarg/scribe-engine/internal/billing"
)

type PackagesHandler struct {
	catalog *billing.Catalog
}

func NewPackagesHandler(catalog *billing.Catalog) *PackagesHandler {
	return &PackagesHandler{catalog: catalog}
}

// ListPackages returns the minute packages on sale.
func (h *PackagesHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs := h.catalog.List()
	WriteJSON(w, http.StatusOK, map[string]any{
		"packages": pkgs,
		"total":    len(pkgs),
	})
}
