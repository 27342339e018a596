package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/ossanalytics/ossanalytics/internal/errors"
	"github.com/ossanalytics/ossanalytics/internal/metrics"
	"github.com/ossanalytics/ossanalytics/internal/output"
)

// DatasetHandler serves the files written by the build command.
type DatasetHandler struct {
	Dir string
}

type datasetIndex struct {
	Packages []json.RawMessage `json:"packages"`
}

// Index serves index.json and updates the datasets-served gauge.
func (h *DatasetHandler) Index(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(h.Dir, output.IndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		respondWithError(w, r, apperrors.NewNotFoundError("no datasets have been built"))
		return
	}
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "read dataset index"))
		return
	}

	var index datasetIndex
	if err := json.Unmarshal(data, &index); err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "decode dataset index"))
		return
	}
	metrics.SetDatasetsServed(len(index.Packages))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// File serves one dataset file, e.g. /datasets/@d3/plot/downloads.json.
func (h *DatasetHandler) File(w http.ResponseWriter, r *http.Request) {
	name, err := h.resolve(chi.URLParam(r, "*"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid dataset path"))
		return
	}

	f, err := os.Open(name)
	if err != nil {
		respondWithError(w, r, apperrors.NewNotFoundError("dataset file not found"))
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondWithError(w, r, apperrors.NewNotFoundError("dataset file not found"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// CheckHealth fails until a build has produced an index.
func (h *DatasetHandler) CheckHealth(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(h.Dir, output.IndexFile)); err != nil {
		return fmt.Errorf("dataset index: %w", err)
	}
	return nil
}

func (h *DatasetHandler) resolve(rel string) (string, error) {
	if rel == "" || strings.Contains(rel, "..") || !strings.HasSuffix(rel, ".json") {
		return "", fmt.Errorf("unsupported path %q", rel)
	}
	clean := strings.TrimPrefix(path.Clean("/"+rel), "/")
	return filepath.Join(h.Dir, filepath.FromSlash(clean)), nil
}
