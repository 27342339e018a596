package server

import (
	"net/http"

	apperrors "github.com/ossanalytics/ossanalytics/internal/errors"
)

// HandleError writes every error response the server produces.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
