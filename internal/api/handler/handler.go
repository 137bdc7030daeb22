// Package handler contains the HTTP handlers of the orchestrator API. Each
// handler is a constructor taking the narrow interface it depends on, so
// tests exercise handlers against small fakes instead of the full engine.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/internal/cluster"
	"github.com/forensiq/forensiq/internal/engine"
	"github.com/forensiq/forensiq/internal/manifest"
	"github.com/forensiq/forensiq/internal/store"
	"github.com/forensiq/forensiq/pkg/models"
)

// decode strictly parses a JSON request body. Unknown fields are rejected so
// a misspelled field fails loudly instead of silently defaulting.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeError maps pipeline errors onto the API error taxonomy: caller bugs
// are 4xx, upstream dependency failures are 502, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var statusErr *models.InvalidStatusError
	switch {
	case errors.Is(err, engine.ErrNoEmbeddedCodes),
		errors.Is(err, engine.ErrDuplicateEmbeddedCodes),
		errors.Is(err, engine.ErrAggregationLevel),
		errors.Is(err, manifest.ErrNoRenditions),
		errors.As(err, &statusErr):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, cluster.ErrClusterAPI):
		response.Error(w, http.StatusBadGateway, "CLUSTER_UNAVAILABLE", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
