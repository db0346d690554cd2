package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/face-bridge/internal/auth"
	"github.com/example/face-bridge/internal/bridge"
	"github.com/example/face-bridge/internal/logging"
	"github.com/example/face-bridge/internal/mlkit"
	"github.com/example/face-bridge/internal/repository"
	"github.com/example/face-bridge/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubService struct {
	result    *mlkit.DetectionResult
	err       error
	gotUser   string
	gotBytes  []byte
	gotPath   string
	log       *repository.DetectionLog
	report    *usecase.DuplicateReport
	summary   *usecase.MetricsSummary
	detectHit bool
}

func (s *stubService) DetectImage(ctx context.Context, userID string, imageBytes []byte) (string, *mlkit.DetectionResult, error) {
	s.detectHit = true
	s.gotUser = userID
	s.gotBytes = imageBytes
	if s.err != nil {
		return "", nil, s.err
	}
	return "req-1", s.result, nil
}

func (s *stubService) DetectPath(ctx context.Context, userID, imagePath string) (string, *mlkit.DetectionResult, error) {
	s.gotUser = userID
	s.gotPath = imagePath
	if s.err != nil {
		return "", nil, s.err
	}
	return "req-2", s.result, nil
}

func (s *stubService) GetResult(ctx context.Context, userID, requestID string) (*repository.DetectionLog, error) {
	s.gotUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return s.log, nil
}

func (s *stubService) GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type stubModules []string

func (s stubModules) ModuleNames() []string { return s }

func newTestRouter(svc DetectionService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, stubModules{mlkit.ModuleName}, auth.JWTMiddleware(testJWTSecret, ""), MaxUploadSize)
	return router
}

func TestDetectRejectsLargeUpload(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	if svc.detectHit {
		t.Fatal("expected oversized upload to be rejected before detection")
	}
}

func TestDetectRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(&stubService{})

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestDetectRequiresToken(t *testing.T) {
	router := newTestRouter(&stubService{})
	body, contentType := buildMultipartBody(t, "image/png", []byte("png"))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestDetectReturnsResult(t *testing.T) {
	svc := &stubService{result: &mlkit.DetectionResult{FaceDetected: true, EyesOpen: true}}
	router := newTestRouter(svc)

	body, contentType := buildMultipartBody(t, "image/jpeg", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["request_id"] != "req-1" || payload["faceDetected"] != true || payload["eyesOpen"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}
	if svc.gotUser != "user-123" || string(svc.gotBytes) != "jpeg-bytes" {
		t.Fatalf("unexpected service call: user=%q bytes=%q", svc.gotUser, svc.gotBytes)
	}
}

func TestDetectPathMapsRejection(t *testing.T) {
	rejection := &bridge.Rejection{Code: mlkit.ErrorCode, Message: "open /missing.jpg: no such file or directory"}
	svc := &stubService{err: logging.NewOperationError("usecase.detect_face", "req-2", rejection)}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/detect/path", strings.NewReader(`{"image_path":"file:///missing.jpg"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != "ERROR" || !strings.Contains(payload["error"], "no such file") {
		t.Fatalf("unexpected payload %v", payload)
	}
	if svc.gotPath != "file:///missing.jpg" {
		t.Fatalf("unexpected path %q", svc.gotPath)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"not found":    {err: logging.NewOperationError("repository.find_by_request", "req", repository.ErrNotFound), status: http.StatusNotFound},
		"processing":   {err: usecase.ErrStillProcessing, status: http.StatusAccepted},
		"paths closed": {err: usecase.ErrLocalPathsDisabled, status: http.StatusForbidden},
		"other":        {err: context.DeadlineExceeded, status: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			router := newTestRouter(&stubService{err: tc.err})
			req := httptest.NewRequest(http.MethodGet, "/result/req", nil)
			req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestResultAndDuplicates(t *testing.T) {
	log := &repository.DetectionLog{RequestID: "req", UserID: "user-123", FaceDetected: true}
	svc := &stubService{
		log:    log,
		report: &usecase.DuplicateReport{Request: log, Duplicates: []*repository.DetectionLog{{RequestID: "req-2"}}},
	}
	router := newTestRouter(svc)
	token := buildTestToken(t, "user-123")

	req := httptest.NewRequest(http.MethodGet, "/result/req", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"face_detected":true`) {
		t.Fatalf("unexpected result response %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/result/req/duplicates", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"req-2"`) {
		t.Fatalf("unexpected duplicates response %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPublicEndpoints(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/modules", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), mlkit.ModuleName) {
		t.Fatalf("unexpected modules response %d: %s", resp.Code, resp.Body.String())
	}
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
