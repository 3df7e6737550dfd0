package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/internal/docmind/biz"
	"github.com/kart-io/docmind/internal/docmind/handler"
	"github.com/kart-io/docmind/internal/docmind/router"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// mockService 记录调用参数并返回预设结果。
type mockService struct {
	submitReq biz.SubmitRequest
	submitRes *biz.SubmitResult
	submitErr error

	job    *model.Job
	jobErr error

	historyEntity string
	historyDay    string
	history       []*model.JobHistoryEntry
	historyErr    error

	askReq   biz.AskRequest
	answer   *biz.Answer
	askErr   error
	askBlock bool

	interactions []*model.Interaction
	cleared      string
	health       *biz.Health
}

func (m *mockService) Submit(_ context.Context, req biz.SubmitRequest) (*biz.SubmitResult, error) {
	m.submitReq = req
	return m.submitRes, m.submitErr
}

func (m *mockService) Status(_ context.Context, jobID string) (*model.Job, error) {
	if m.jobErr != nil {
		return nil, m.jobErr
	}
	return &model.Job{ID: jobID, Status: model.JobDone, Summary: "résumé"}, nil
}

func (m *mockService) LatestJob(_ context.Context, entityID string) (*model.Job, error) {
	if m.jobErr != nil {
		return nil, m.jobErr
	}
	return &model.Job{ID: "latest", EntityID: entityID, Status: model.JobProcessing}, nil
}

func (m *mockService) History(_ context.Context, entityID, day string) ([]*model.JobHistoryEntry, error) {
	m.historyEntity, m.historyDay = entityID, day
	return m.history, m.historyErr
}

func (m *mockService) Ask(ctx context.Context, req biz.AskRequest) (*biz.Answer, error) {
	m.askReq = req
	if m.askBlock {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.answer, m.askErr
}

func (m *mockService) Session(_ context.Context, _ string) ([]*model.Interaction, error) {
	return m.interactions, nil
}

func (m *mockService) ClearSession(_ context.Context, sessionID string) error {
	m.cleared = sessionID
	return nil
}

func (m *mockService) Health(context.Context) *biz.Health { return m.health }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newEngine(svc handler.Service, timeout time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	router.Register(e, handler.NewDocmindHandler(svc, timeout))
	return e
}

func do(t *testing.T, e *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestSummarize(t *testing.T) {
	svc := &mockService{submitRes: &biz.SubmitResult{Mode: biz.ModeAsync, JobID: "j1", Status: "processing"}}
	e := newEngine(svc, 0)

	w, env := do(t, e, http.MethodPost, "/v1/docmind/summarize", `{"pdf_url":"https://x/a.pdf","entity_id":"acme"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, biz.SubmitRequest{URL: "https://x/a.pdf", EntityID: "acme"}, svc.submitReq)

	var res biz.SubmitResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "j1", res.JobID)
	assert.Equal(t, "async", res.Mode)
}

func TestSummarizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   int
	}{
		{"JSON 非法", `{"pdf_url":`, nil, http.StatusBadRequest, errors.ErrInvalidParam.Code},
		{"缺少 URL", `{}`, errors.ErrMissingURL, http.StatusBadRequest, errors.ErrMissingURL.Code},
		{"下载失败", `{"pdf_url":"https://x"}`, errors.ErrDownloadFailed, http.StatusServiceUnavailable, errors.ErrDownloadFailed.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(&mockService{submitErr: tt.err}, 0)
			w, env := do(t, e, http.MethodPost, "/v1/docmind/summarize", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestJobEndpoints(t *testing.T) {
	e := newEngine(&mockService{}, 0)

	w, env := do(t, e, http.MethodGet, "/v1/docmind/jobs/abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "abc", job.ID)
	assert.Equal(t, model.JobDone, job.Status)

	_, env = do(t, e, http.MethodGet, "/v1/docmind/entities/acme/latest-job", "")
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "acme", job.EntityID)

	e = newEngine(&mockService{jobErr: errors.ErrJobNotFound}, 0)
	w, env = do(t, e, http.MethodGet, "/v1/docmind/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrJobNotFound.Code, env.Code)
	assert.Equal(t, "Job introuvable.", env.Message)
}

func TestHistory(t *testing.T) {
	svc := &mockService{}
	e := newEngine(svc, 0)

	_, env := do(t, e, http.MethodGet, "/v1/docmind/entities/acme/history?day=2026-10-14", "")
	assert.Equal(t, "acme", svc.historyEntity)
	assert.Equal(t, "2026-10-14", svc.historyDay)
	assert.JSONEq(t, `{"entries":[]}`, string(env.Data))

	svc.historyErr = errors.ErrInvalidParam
	w, _ := do(t, e, http.MethodGet, "/v1/docmind/entities/acme/history?day=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsk(t *testing.T) {
	svc := &mockService{answer: &biz.Answer{
		Text:     "Le budget est de 2 M€.",
		Scope:    biz.Scope{Label: biz.ScopeSpecific, Confidence: 0.9},
		Evidence: []string{"budget.pdf#0"},
	}}
	e := newEngine(svc, time.Second)

	w, env := do(t, e, http.MethodPost, "/v1/docmind/ask", `{"question":"Quel budget ?","job_id":"j1","entity_id":"acme","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Quel budget ?", svc.askReq.Question)
	assert.Equal(t, "s1", svc.askReq.SessionID)

	var ans biz.Answer
	require.NoError(t, json.Unmarshal(env.Data, &ans))
	assert.Equal(t, biz.ScopeSpecific, ans.Scope.Label)
	assert.Equal(t, []string{"budget.pdf#0"}, ans.Evidence)
}

func TestAskFailureCarriesAnswer(t *testing.T) {
	svc := &mockService{
		answer: &biz.Answer{Text: "Le service est indisponible."},
		askErr: errors.ErrAnswerFailed,
	}
	e := newEngine(svc, 0)

	w, env := do(t, e, http.MethodPost, "/v1/docmind/ask", `{"question":"q","job_id":"j","entity_id":"e"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrAnswerFailed.Code, env.Code)
	assert.True(t, strings.Contains(string(env.Data), "indisponible"))
}

func TestAskTimeout(t *testing.T) {
	e := newEngine(&mockService{askBlock: true}, 20*time.Millisecond)

	w, env := do(t, e, http.MethodPost, "/v1/docmind/ask", `{"question":"q","job_id":"j","entity_id":"e"}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, errors.ErrTimeout.Code, env.Code)
}

func TestSessions(t *testing.T) {
	svc := &mockService{interactions: []*model.Interaction{{SessionID: "s1", Question: "q1", Answer: "a1"}}}
	e := newEngine(svc, 0)

	_, env := do(t, e, http.MethodGet, "/v1/docmind/sessions/s1", "")
	var got struct {
		SessionID    string               `json:"session_id"`
		Interactions []*model.Interaction `json:"interactions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "s1", got.SessionID)
	require.Len(t, got.Interactions, 1)
	assert.Equal(t, "a1", got.Interactions[0].Answer)

	w, _ := do(t, e, http.MethodDelete, "/v1/docmind/sessions/s1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", svc.cleared)
}

func TestHealthz(t *testing.T) {
	e := newEngine(&mockService{health: &biz.Health{
		Status:           biz.HealthDegraded,
		QueueLen:         3,
		Vectors:          12,
		EmbeddingBreaker: "open",
	}}, 0)
	_, env := do(t, e, http.MethodGet, "/v1/docmind/healthz", "")
	assert.JSONEq(t, `{"status":"degraded","queue_len":3,"vectors":12,"embedding_breaker":"open"}`, string(env.Data))
}
