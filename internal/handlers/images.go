package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"imgvault/internal/models"
	"imgvault/internal/repository"
	"imgvault/internal/service"
	"imgvault/internal/storage"
)

type sizesResponse struct {
	Original int64 `json:"original"`
	Webp     int64 `json:"webp"`
	Avif     int64 `json:"avif"`
}

type imageResponse struct {
	ID          string            `json:"id"`
	URLs        map[string]string `json:"urls"`
	Format      string            `json:"format"`
	Orientation string            `json:"orientation"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Tags        []string          `json:"tags"`
	Sizes       sizesResponse     `json:"sizes"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (h HandlerSet) imageToResponse(image models.Image) imageResponse {
	tags := image.Tags
	if tags == nil {
		tags = []string{}
	}
	return imageResponse{
		ID:          image.ID,
		URLs:        h.urls.ImageURLs(image),
		Format:      image.Format,
		Orientation: string(image.Orientation),
		Width:       image.Width,
		Height:      image.Height,
		Tags:        tags,
		Sizes: sizesResponse{
			Original: image.Original.Size,
			Webp:     image.Webp.Size,
			Avif:     image.Avif.Size,
		},
		ExpiresAt: image.ExpireAt,
		CreatedAt: image.CreatedAt,
	}
}

func (h HandlerSet) UploadImage(c *gin.Context) {
	if max := h.cfg.Upload.MaxBodyBytes; max > 0 && c.Request.ContentLength > max {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()

	expiryMinutes := 0
	if raw := c.PostForm("expiryMinutes"); raw != "" {
		expiryMinutes, err = strconv.Atoi(raw)
		if err != nil || expiryMinutes < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiryMinutes must be a non-negative integer"})
			return
		}
	}

	image, err := h.uploadService.Upload(c.Request.Context(), service.UploadInput{
		File:          file,
		Header:        header,
		Tags:          c.PostForm("tags"),
		ExpiryMinutes: expiryMinutes,
		WantWebp:      formFlag(c, "compressWebp", true),
		WantAvif:      formFlag(c, "compressAvif", true),
	})
	if err != nil {
		h.writeError(c, err, "upload failed")
		return
	}

	c.JSON(http.StatusCreated, h.imageToResponse(image))
}

func (h HandlerSet) RandomImage(c *gin.Context) {
	req, ok := h.serveRequest(c)
	if !ok {
		return
	}

	result, err := h.serveService.Random(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "random image failed")
		return
	}
	h.streamImage(c, result)
}

func (h HandlerSet) GetImage(c *gin.Context) {
	req, ok := h.serveRequest(c)
	if !ok {
		return
	}

	result, err := h.serveService.ByID(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err, "get image failed")
		return
	}
	h.streamImage(c, result)
}

func (h HandlerSet) GetImageMeta(c *gin.Context) {
	image, err := h.serveService.Meta(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get meta failed")
		return
	}
	c.JSON(http.StatusOK, h.imageToResponse(image))
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	if err := h.serveService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "delete failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h HandlerSet) ListImages(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	images, err := h.images.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.writeError(c, err, "list failed")
		return
	}

	items := make([]imageResponse, 0, len(images))
	for _, image := range images {
		items = append(items, h.imageToResponse(image))
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// serveRequest parses the retrieval query surface; it writes the error
// response itself when validation fails.
func (h HandlerSet) serveRequest(c *gin.Context) (service.ServeRequest, bool) {
	orientation := c.Query("orientation")
	switch orientation {
	case "", string(models.OrientationLandscape), string(models.OrientationPortrait):
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "orientation must be landscape or portrait"})
		return service.ServeRequest{}, false
	}

	format := c.Query("format")
	switch format {
	case "", "original", "webp", "avif":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be original, webp or avif"})
		return service.ServeRequest{}, false
	}

	return service.ServeRequest{
		Filter: repository.Filter{
			Tags:        splitTags(c.Query("tags")),
			Exclude:     splitList(c.Query("exclude")),
			Orientation: models.Orientation(orientation),
		},
		Format:     format,
		Accept:     c.GetHeader("Accept"),
		MobileHint: strings.Contains(c.GetHeader("User-Agent"), "Mobile"),
	}, true
}

func (h HandlerSet) streamImage(c *gin.Context, result service.ServeResult) {
	defer result.Body.Close()

	c.Header("Content-Type", result.ContentType)
	c.Header("X-Image-Id", result.ImageID)
	if result.Size >= 0 {
		c.Header("Content-Length", strconv.FormatInt(result.Size, 10))
	}
	c.Status(http.StatusOK)

	// a client disconnect mid-stream just truncates the body
	_, _ = io.Copy(c.Writer, result.Body)
}

func (h HandlerSet) writeError(c *gin.Context, err error, action string) {
	var vErr service.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, repository.ErrImageNotFound), errors.Is(err, storage.ErrObjectMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}

func formFlag(c *gin.Context, field string, fallback bool) bool {
	raw := c.PostForm(field)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// splitList keeps elements verbatim apart from trimming; image ids are
// case-sensitive ksuids, so exclusion lists must not be folded.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitTags folds to lowercase to match how tags are stored.
func splitTags(raw string) []string {
	tags := splitList(raw)
	for i, tag := range tags {
		tags[i] = strings.ToLower(tag)
	}
	return tags
}
