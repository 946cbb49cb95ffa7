package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type photoReportServiceMock struct {
	lastCreate  dto.CreatePhotoReportRequest
	uploadNames []string
	uploadBytes [][]byte
	lastReview  dto.ReviewPhotoReportRequest
	err         error
}

func (m *photoReportServiceMock) Create(ctx context.Context, req dto.CreatePhotoReportRequest, uploads []service.PhotoUpload, principal *models.JWTClaims) (*models.PhotoReport, error) {
	m.lastCreate = req
	for _, upload := range uploads {
		content, _ := io.ReadAll(upload.Content)
		m.uploadNames = append(m.uploadNames, upload.Filename)
		m.uploadBytes = append(m.uploadBytes, content)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &models.PhotoReport{ID: "r-1", ClientID: req.ClientID, Status: models.PhotoReportSubmitted}, nil
}

func (m *photoReportServiceMock) SubmitDraft(ctx context.Context, id string, principal *models.JWTClaims) (*models.PhotoReport, error) {
	return &models.PhotoReport{ID: id, Status: models.PhotoReportSubmitted}, m.err
}

func (m *photoReportServiceMock) Review(ctx context.Context, id string, req dto.ReviewPhotoReportRequest, principal *models.JWTClaims) (*models.PhotoReport, error) {
	m.lastReview = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.PhotoReport{ID: id, Status: models.PhotoReportRejected}, nil
}

func (m *photoReportServiceMock) Get(ctx context.Context, id string, principal *models.JWTClaims) (*models.PhotoReport, error) {
	return &models.PhotoReport{ID: id}, m.err
}

func (m *photoReportServiceMock) List(ctx context.Context, query dto.PhotoReportFilter, principal *models.JWTClaims) ([]models.PhotoReport, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

type evaluationServiceMock struct {
	last dto.CreateEvaluationRequest
}

func (m *evaluationServiceMock) Create(ctx context.Context, reportID string, req dto.CreateEvaluationRequest, principal *models.JWTClaims) (*dto.EvaluationResult, error) {
	m.last = req
	return &dto.EvaluationResult{Evaluation: models.Evaluation{ID: "e-1", ReportID: reportID}}, nil
}

func (m *evaluationServiceMock) ListByReport(ctx context.Context, reportID string, principal *models.JWTClaims) ([]models.Evaluation, error) {
	return []models.Evaluation{{ID: "e-1", ReportID: reportID}}, nil
}

func TestPhotoReportHandlerCreateMultipart(t *testing.T) {
	svc := &photoReportServiceMock{}
	handler := NewPhotoReportHandler(svc, nil)
	c, w := newMultipartContext(t, "/photo-reports", map[string]string{
		"client_id":   "5f0c8a4e-6d1b-4c56-9b8a-1d2e3f4a5b6c",
		"stand_count": "3",
		"draft":       "true",
	}, photoFormField, map[string][]byte{"front.jpg": []byte("jpeg-bytes")})
	withPrincipal(c, employeeClaims)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "5f0c8a4e-6d1b-4c56-9b8a-1d2e3f4a5b6c", svc.lastCreate.ClientID)
	assert.Equal(t, 3, svc.lastCreate.StandCount)
	assert.True(t, svc.lastCreate.Draft)
	assert.Equal(t, []string{"front.jpg"}, svc.uploadNames)
	assert.Equal(t, []byte("jpeg-bytes"), svc.uploadBytes[0])
}

func TestPhotoReportHandlerCreateRequiresMultipart(t *testing.T) {
	handler := NewPhotoReportHandler(&photoReportServiceMock{}, nil)
	c, w := newGinContext(http.MethodPost, "/photo-reports", []byte(`{"client_id":"x"}`))
	withPrincipal(c, employeeClaims)

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhotoReportHandlerCreatePropagatesMediaError(t *testing.T) {
	svc := &photoReportServiceMock{err: appErrors.Clone(appErrors.ErrUnsupportedMediaType, "only JPEG and PNG photos are accepted")}
	handler := NewPhotoReportHandler(svc, nil)
	c, w := newMultipartContext(t, "/photo-reports", map[string]string{"client_id": "c"}, photoFormField,
		map[string][]byte{"notes.txt": []byte("plain text")})
	withPrincipal(c, employeeClaims)

	handler.Create(c)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestPhotoReportHandlerReview(t *testing.T) {
	svc := &photoReportServiceMock{}
	handler := NewPhotoReportHandler(svc, nil)
	payload, _ := json.Marshal(dto.ReviewPhotoReportRequest{Action: models.ReviewReject, Reason: "blurry"})
	c, w := newGinContext(http.MethodPost, "/photo-reports/r-1/review", payload)
	withPrincipal(c, moderatorClaims)
	withID(c, "r-1")

	handler.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ReviewReject, svc.lastReview.Action)
	assert.Equal(t, "blurry", svc.lastReview.Reason)
}

func TestPhotoReportHandlerEvaluations(t *testing.T) {
	evaluations := &evaluationServiceMock{}
	handler := NewPhotoReportHandler(&photoReportServiceMock{}, evaluations)
	payload, _ := json.Marshal(dto.CreateEvaluationRequest{PresentationComment: "price tags missing"})
	c, w := newGinContext(http.MethodPost, "/photo-reports/r-1/evaluations", payload)
	withPrincipal(c, moderatorClaims)
	withID(c, "r-1")

	handler.Evaluate(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "price tags missing", evaluations.last.PresentationComment)

	c, w = newGinContext(http.MethodGet, "/photo-reports/r-1/evaluations", nil)
	withPrincipal(c, employeeClaims)
	withID(c, "r-1")
	handler.Evaluations(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPhotoReportHandlerEvaluationsUnconfigured(t *testing.T) {
	handler := NewPhotoReportHandler(&photoReportServiceMock{}, nil)
	c, w := newGinContext(http.MethodGet, "/photo-reports/r-1/evaluations", nil)
	withPrincipal(c, moderatorClaims)

	handler.Evaluations(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
