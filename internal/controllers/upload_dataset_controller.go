package controllers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/providers"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

type uploadDatasetController struct {
	store    providers.ArtifactStore
	maxBytes int64
}

func NewUploadDatasetController(store providers.ArtifactStore, maxBytes int64) *uploadDatasetController {
	return &uploadDatasetController{store: store, maxBytes: maxBytes}
}

type uploadResp struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Size    int64    `json:"size"`
}

// Handle accepts a CSV either as the multipart field "file" or as the raw body.
func (h *uploadDatasetController) Handle(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	name := strings.TrimSpace(c.Query("name"))
	var raw []byte
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, ferr := c.FormFile("file")
		if ferr != nil {
			badRequest(c, "missing multipart field 'file'")
			return
		}
		if name == "" {
			name = fh.Filename
		}
		f, oerr := fh.Open()
		if oerr != nil {
			badRequest(c, "unreadable upload")
			return
		}
		defer f.Close()
		raw, err = io.ReadAll(f)
	} else {
		raw, err = io.ReadAll(c.Request.Body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "dataset too large"})
			return
		}
		badRequest(c, "unreadable upload")
		return
	}

	data, err := domain.ParseCSVBytes(raw)
	if err != nil {
		badRequest(c, "invalid CSV: "+err.Error())
		return
	}
	if data.Len() == 0 {
		badRequest(c, "dataset has no rows")
		return
	}

	key := "datasets/" + middleware.UserID(c) + "/" + uuid.NewString() + ".csv"
	handle, err := h.store.Put(c.Request.Context(), key, "text/csv", raw)
	if err != nil {
		writeError(c, err)
		return
	}
	if name == "" {
		name = path.Base(key)
	}
	c.JSON(http.StatusCreated, uploadResp{
		Key:     handle.Key,
		Name:    name,
		Rows:    data.Len(),
		Columns: data.Header,
		Size:    handle.Size,
	})
}
