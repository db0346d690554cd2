package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-bridge/internal/bitmap"
	"github.com/example/face-bridge/internal/bridge"
	"github.com/example/face-bridge/internal/logging"
	"github.com/example/face-bridge/internal/mlkit"
	"github.com/example/face-bridge/internal/repository"
)

var (
	// ErrLocalPathsDisabled is returned by DetectPath unless local paths were enabled.
	ErrLocalPathsDisabled = errors.New("detection from local paths is disabled")
	// ErrStillProcessing is returned by GetResult while a request is in flight.
	ErrStillProcessing = errors.New("detection still processing")
)

const processingMarker = "processing"

// DetectionRepository defines the persistence operations needed by the use case.
type DetectionRepository interface {
	SaveLog(ctx context.Context, log *repository.DetectionLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.DetectionLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.DetectionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// DetectionUseCase drives the face detection module and records each outcome.
type DetectionUseCase struct {
	repo            DetectionRepository
	cache           Cache
	detector        mlkit.FaceDetector
	logger          *zap.Logger
	stagingDir      string
	allowLocalPaths bool
	retryAttempts   int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
}

// Option customises a DetectionUseCase.
type Option func(*DetectionUseCase)

// WithLocalPaths enables DetectPath.
func WithLocalPaths(enabled bool) Option {
	return func(uc *DetectionUseCase) { uc.allowLocalPaths = enabled }
}

// WithStagingDir sets where uploaded images are written before detection.
func WithStagingDir(dir string) Option {
	return func(uc *DetectionUseCase) { uc.stagingDir = dir }
}

type cachedDetection struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	ImageURI     string    `json:"image_uri"`
	FaceDetected bool      `json:"face_detected"`
	EyesOpen     bool      `json:"eyes_open"`
	Hash         string    `json:"sha1_hash"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// DuplicateReport lists earlier or later requests that submitted the same image.
type DuplicateReport struct {
	Request    *repository.DetectionLog
	Duplicates []*repository.DetectionLog
}

// NewDetectionUseCase constructs a new use case instance.
func NewDetectionUseCase(repo DetectionRepository, cache Cache, detector mlkit.FaceDetector, logger *zap.Logger, opts ...Option) *DetectionUseCase {
	uc := &DetectionUseCase{
		repo:           repo,
		cache:          cache,
		detector:       detector,
		logger:         logger.Named("detection_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// DetectImage stages imageBytes on disk and runs face detection on them.
func (uc *DetectionUseCase) DetectImage(ctx context.Context, userID string, imageBytes []byte) (string, *mlkit.DetectionResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.detect_image", requestID)

	if err := uc.markProcessing(ctx, requestID); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	uri, cleanup, err := uc.stage(imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.stage_image", requestID, err)
		opLogger.Error("failed to stage image", zap.Error(wrapped))
		return "", nil, wrapped
	}
	defer cleanup()

	hash := sha1.Sum(imageBytes)
	result, err := uc.detectAndRecord(ctx, opLogger, requestID, userID, uri, hex.EncodeToString(hash[:]))
	if err != nil {
		return "", nil, err
	}
	return requestID, result, nil
}

// DetectPath runs face detection on an image already present on the host.
func (uc *DetectionUseCase) DetectPath(ctx context.Context, userID, imagePath string) (string, *mlkit.DetectionResult, error) {
	if !uc.allowLocalPaths {
		return "", nil, ErrLocalPathsDisabled
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.detect_path", requestID)

	if err := uc.markProcessing(ctx, requestID); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	result, err := uc.detectAndRecord(ctx, opLogger, requestID, userID, imagePath, hashFile(imagePath))
	if err != nil {
		return "", nil, err
	}
	return requestID, result, nil
}

func (uc *DetectionUseCase) detectAndRecord(ctx context.Context, opLogger *zap.Logger, requestID, userID, uri, hash string) (*mlkit.DetectionResult, error) {
	start := time.Now()
	promise := bridge.NewPromise()
	uc.detector.DetectFace(ctx, uri, promise)
	value, err := promise.Await(ctx)
	if err != nil {
		opErr := &logging.OperationError{Operation: "usecase.detect_face", RequestID: requestID, Err: err}
		uc.logger.Warn("face detection failed", opErr.Fields()...)
		uc.clearProcessing(ctx, opLogger, requestID)
		return nil, opErr
	}
	result := mlkit.ResultFromMap(value)

	log := &repository.DetectionLog{
		RequestID:    requestID,
		UserID:       userID,
		ImageURI:     uri,
		FaceDetected: result.FaceDetected,
		EyesOpen:     result.EyesOpen,
		SHA1Hash:     hash,
		LatencyMs:    time.Since(start).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist detection log", zap.Error(wrapped))
		uc.clearProcessing(ctx, opLogger, requestID)
		return nil, wrapped
	}

	serialized, err := json.Marshal(cachedDetection{
		RequestID:    log.RequestID,
		UserID:       log.UserID,
		ImageURI:     log.ImageURI,
		FaceDetected: log.FaceDetected,
		EyesOpen:     log.EyesOpen,
		Hash:         log.SHA1Hash,
		LatencyMs:    log.LatencyMs,
		CreatedAt:    log.CreatedAt,
	})
	if err != nil {
		opLogger.Error("failed to serialize detection result", zap.Error(err))
		return nil, err
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey(requestID), string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache detection result", zap.Error(err))
		return nil, err
	}

	opLogger.Info("face detection recorded",
		zap.Bool("face_detected", result.FaceDetected),
		zap.Bool("eyes_open", result.EyesOpen),
		zap.Int64("latency_ms", log.LatencyMs),
	)
	return &result, nil
}

// GetResult retrieves a cached detection outcome or loads it from persistence.
func (uc *DetectionUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.DetectionLog, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey(requestID)); err == nil {
		if cached == processingMarker {
			return nil, ErrStillProcessing
		}
		var payload cachedDetection
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
		} else if payload.UserID == userID {
			return &repository.DetectionLog{
				RequestID:    requestID,
				UserID:       payload.UserID,
				ImageURI:     payload.ImageURI,
				FaceDetected: payload.FaceDetected,
				EyesOpen:     payload.EyesOpen,
				SHA1Hash:     payload.Hash,
				LatencyMs:    payload.LatencyMs,
				CreatedAt:    payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// GetDuplicateReport builds a duplicate image report for a detection request.
func (uc *DetectionUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.SHA1Hash, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *DetectionUseCase) markProcessing(ctx context.Context, requestID string) error {
	return uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey(requestID), processingMarker, time.Minute)
	})
}

// clearProcessing drops the processing marker of a request that will never
// produce a result.
func (uc *DetectionUseCase) clearProcessing(ctx context.Context, opLogger *zap.Logger, requestID string) {
	ctx = context.WithoutCancel(ctx)
	if err := uc.withRedisRetry(ctx, requestID, "cache.del.processing", func() error {
		return uc.cache.Del(ctx, cacheKey(requestID))
	}); err != nil {
		opLogger.Warn("failed to clear processing flag", zap.Error(err))
	}
}

func (uc *DetectionUseCase) stage(imageBytes []byte) (string, func(), error) {
	f, err := os.CreateTemp(uc.stagingDir, "face-*.img")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			uc.logger.Warn("failed to remove staged image", zap.String("path", f.Name()), zap.Error(err))
		}
	}
	if _, err := f.Write(imageBytes); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return bitmap.FileURI(f.Name()), cleanup, nil
}

// hashFile returns the SHA-1 of the file behind uri, or "" when it cannot be read.
func hashFile(uri string) string {
	path, err := bitmap.ResolvePath(uri)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("detection:%s", requestID)
}

func (uc *DetectionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}

		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *DetectionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
