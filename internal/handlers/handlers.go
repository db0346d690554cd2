package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/face-bridge/internal/auth"
	"github.com/example/face-bridge/internal/logging"
	"github.com/example/face-bridge/internal/mlkit"
	"github.com/example/face-bridge/internal/repository"
	"github.com/example/face-bridge/internal/usecase"
)

// MaxUploadSize is the default upper bound for uploaded images.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around the image.
const multipartOverhead = 64 << 10

// DetectionService is the use case surface the HTTP layer depends on.
type DetectionService interface {
	DetectImage(ctx context.Context, userID string, imageBytes []byte) (string, *mlkit.DetectionResult, error)
	DetectPath(ctx context.Context, userID, imagePath string) (string, *mlkit.DetectionResult, error)
	GetResult(ctx context.Context, userID, requestID string) (*repository.DetectionLog, error)
	GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// ModuleLister reports the native modules available to callers.
type ModuleLister interface {
	ModuleNames() []string
}

type pathRequest struct {
	ImagePath string `json:"image_path" binding:"required"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. A non-positive
// maxUploadSize selects MaxUploadSize.
func RegisterRoutes(router *gin.Engine, svc DetectionService, modules ModuleLister, authMiddleware gin.HandlerFunc, maxUploadSize int64) {
	if maxUploadSize <= 0 {
		maxUploadSize = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/modules", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"modules": modules.ModuleNames()})
	})

	api := router.Group("/", authMiddleware)

	api.POST("/detect", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize+multipartOverhead)
		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		if ct := file.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		requestID, result, err := svc.DetectImage(c.Request.Context(), userID, data)
		if err != nil {
			writeError(c, err)
			return
		}
		writeDetection(c, requestID, result)
	})

	api.POST("/detect/path", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		var req pathRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_path is required"})
			return
		}

		requestID, result, err := svc.DetectPath(c.Request.Context(), userID, req.ImagePath)
		if err != nil {
			writeError(c, err)
			return
		}
		writeDetection(c, requestID, result)
	})

	api.GET("/result/:id", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		log, err := svc.GetResult(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, logJSON(log))
	})

	api.GET("/result/:id/duplicates", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		report, err := svc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		duplicates := make([]gin.H, 0, len(report.Duplicates))
		for _, d := range report.Duplicates {
			duplicates = append(duplicates, logJSON(d))
		}
		c.JSON(http.StatusOK, gin.H{
			"request":    logJSON(report.Request),
			"duplicates": duplicates,
		})
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func writeDetection(c *gin.Context, requestID string, result *mlkit.DetectionResult) {
	c.JSON(http.StatusOK, gin.H{
		"request_id":          requestID,
		mlkit.KeyFaceDetected: result.FaceDetected,
		mlkit.KeyEyesOpen:     result.EyesOpen,
	})
}

func logJSON(log *repository.DetectionLog) gin.H {
	return gin.H{
		"request_id":    log.RequestID,
		"user_id":       log.UserID,
		"face_detected": log.FaceDetected,
		"eyes_open":     log.EyesOpen,
		"sha1_hash":     log.SHA1Hash,
		"latency_ms":    log.LatencyMs,
		"created_at":    log.CreatedAt,
	}
}

func writeError(c *gin.Context, err error) {
	if coded, ok := logging.AsCoded(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": coded.ErrorCode(), "error": coded.Detail()})
		return
	}
	switch {
	case errors.Is(err, usecase.ErrStillProcessing):
		c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
	case errors.Is(err, usecase.ErrLocalPathsDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
