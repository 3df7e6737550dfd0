// Package handler provides HTTP handlers for the docmind service.
package handler

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docmind/internal/docmind/biz"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/httputils"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// Service 是处理器依赖的业务接口，由 *biz.Service 实现。
type Service interface {
	Submit(ctx context.Context, req biz.SubmitRequest) (*biz.SubmitResult, error)
	Status(ctx context.Context, jobID string) (*model.Job, error)
	LatestJob(ctx context.Context, entityID string) (*model.Job, error)
	History(ctx context.Context, entityID, day string) ([]*model.JobHistoryEntry, error)
	Ask(ctx context.Context, req biz.AskRequest) (*biz.Answer, error)
	Session(ctx context.Context, sessionID string) ([]*model.Interaction, error)
	ClearSession(ctx context.Context, sessionID string) error
	Health(ctx context.Context) *biz.Health
}

var _ Service = (*biz.Service)(nil)

// DocmindHandler handles docmind HTTP requests.
type DocmindHandler struct {
	service        Service
	requestTimeout time.Duration
}

// NewDocmindHandler creates a new DocmindHandler. requestTimeout 限制同步问答的耗时，0 表示不限制。
func NewDocmindHandler(service Service, requestTimeout time.Duration) *DocmindHandler {
	return &DocmindHandler{service: service, requestTimeout: requestTimeout}
}

// Summarize 提交文档摘要任务。
func (h *DocmindHandler) Summarize(c *gin.Context) {
	var req biz.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrInvalidParam.WithMessage(err.Error()), nil)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), req)
	httputils.WriteResponse(c, err, result)
}

// Job 查询任务状态。
func (h *DocmindHandler) Job(c *gin.Context) {
	job, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, job)
}

// LatestJob 查询实体最近的任务。
func (h *DocmindHandler) LatestJob(c *gin.Context) {
	job, err := h.service.LatestJob(c.Request.Context(), c.Param("entity"))
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, job)
}

// History 查询实体某天的任务历史。
func (h *DocmindHandler) History(c *gin.Context) {
	entries, err := h.service.History(c.Request.Context(), c.Param("entity"), c.Query("day"))
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if entries == nil {
		entries = []*model.JobHistoryEntry{}
	}
	httputils.WriteResponse(c, nil, gin.H{"entries": entries})
}

// Ask 回答问题。生成失败时仍返回兜底回答。
func (h *DocmindHandler) Ask(c *gin.Context) {
	var req biz.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrInvalidParam.WithMessage(err.Error()), nil)
		return
	}

	ctx := c.Request.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	answer, err := h.service.Ask(ctx, req)
	if err != nil && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.ErrTimeout.WithCause(err)
	}
	if err != nil && answer == nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, err, answer)
}

// Session 返回会话记录。
func (h *DocmindHandler) Session(c *gin.Context) {
	items, err := h.service.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if items == nil {
		items = []*model.Interaction{}
	}
	httputils.WriteResponse(c, nil, gin.H{"session_id": c.Param("id"), "interactions": items})
}

// ClearSession 清空会话记录。
func (h *DocmindHandler) ClearSession(c *gin.Context) {
	if err := h.service.ClearSession(c.Request.Context(), c.Param("id")); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"session_id": c.Param("id"), "cleared": true})
}

// Healthz 存活检查，附带队列、向量索引与生成槽位状态。
func (h *DocmindHandler) Healthz(c *gin.Context) {
	httputils.WriteResponse(c, nil, h.service.Health(c.Request.Context()))
}
