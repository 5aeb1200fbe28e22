package controllers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/providers"
)

type artifactController struct{ store providers.ArtifactStore }

func NewArtifactController(store providers.ArtifactStore) *artifactController {
	return &artifactController{store}
}

// Handle serves an object addressed by a signed URL. No bearer token is
// required; the signature is the credential.
func (h *artifactController) Handle(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := h.store.Verify(key, c.Query("expires"), c.Query("sig")); err != nil {
		switch {
		case errors.Is(err, providers.ErrExpired):
			c.JSON(http.StatusForbidden, gin.H{"error": "link expired"})
		case errors.Is(err, providers.ErrInvalidKey):
			badRequest(c, "invalid key")
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		}
		return
	}
	data, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
			return
		}
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
