package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/core/port"
	"github.com/arklim/session-guard/internal/usecase"
)

// PollingController is the subset of the scheduler driven over HTTP.
type PollingController interface {
	State() usecase.SchedulerState
	ErrorState() domain.ErrorState
	Pause()
	Resume()
	CheckNow(ctx context.Context) error
}

// SessionEnder ends the guarded session and reports how it ended.
type SessionEnder interface {
	SessionID() string
	Result() (domain.Termination, bool)
	Terminate(ctx context.Context, reason string)
}

// SnapshotReader serves the cached permission snapshot.
type SnapshotReader interface {
	Read(ctx context.Context, ignoreCache bool) (domain.PermissionSnapshot, bool)
	FetchedAt() (time.Time, bool)
}

// SessionHandler exposes guard state and controls to the local UI shell.
// It also records navigation requests and the pending revocation notice.
type SessionHandler struct {
	polling     PollingController
	terminator  SessionEnder
	permissions SnapshotReader
	reasons     port.ReasonStore

	mu       sync.RWMutex
	redirect string
	notice   *domain.RevocationNotice
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(polling PollingController, terminator SessionEnder, permissions SnapshotReader, reasons port.ReasonStore) *SessionHandler {
	return &SessionHandler{
		polling:     polling,
		terminator:  terminator,
		permissions: permissions,
		reasons:     reasons,
	}
}

// RegisterRoutes binds the session routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	session := r.Group("/session")
	session.GET("", h.Status)
	session.POST("/pause", h.Pause)
	session.POST("/resume", h.Resume)
	session.POST("/check", h.Check)
	session.POST("/logout", h.Logout)
	session.POST("/notice/ack", h.AcknowledgeNotice)

	r.GET("/permissions", h.Permissions)
	r.GET("/login/reason", h.LoginReason)
}

// Navigate records target as the pending redirect for the UI shell.
func (h *SessionHandler) Navigate(_ context.Context, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redirect = target
	return nil
}

// ShowNotice stores the revocation notice until it is acknowledged or the session ends.
func (h *SessionHandler) ShowNotice(notice domain.RevocationNotice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notice = &notice
}

// Status godoc
// @Summary Guard state
// @Description Returns polling state, failure streak, pending notice and redirect.
// @Tags Session
// @Produce json
// @Success 200 {object} SessionStatusResponse
// @Router /v1/session [get]
func (h *SessionHandler) Status(c *gin.Context) {
	errState := h.polling.ErrorState()
	resp := SessionStatusResponse{
		SessionID:           h.terminator.SessionID(),
		State:               string(h.polling.State()),
		ConsecutiveFailures: errState.ConsecutiveFailures,
		Paused:              errState.Paused,
	}

	if result, ok := h.terminator.Result(); ok {
		resp.Termination = &TerminationPayload{
			Cause:        string(result.Cause),
			Reason:       result.Reason,
			TerminatedAt: result.TerminatedAt,
		}
	}

	h.mu.RLock()
	resp.RedirectTo = h.redirect
	if h.notice != nil && resp.Termination == nil {
		resp.Notice = newNoticePayload(*h.notice)
	}
	h.mu.RUnlock()

	c.JSON(http.StatusOK, resp)
}

// Pause godoc
// @Summary Pause polling
// @Tags Session
// @Success 204
// @Router /v1/session/pause [post]
func (h *SessionHandler) Pause(c *gin.Context) {
	h.polling.Pause()
	c.Status(http.StatusNoContent)
}

// Resume godoc
// @Summary Resume polling
// @Tags Session
// @Success 204
// @Router /v1/session/resume [post]
func (h *SessionHandler) Resume(c *gin.Context) {
	h.polling.Resume()
	c.Status(http.StatusNoContent)
}

// Check godoc
// @Summary Run a permission check now
// @Tags Session
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 409 {object} ErrorResponse
// @Router /v1/session/check [post]
func (h *SessionHandler) Check(c *gin.Context) {
	if err := h.polling.CheckNow(c.Request.Context()); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrSchedulerNotRunning, Status: http.StatusConflict, Message: "polling is not running"},
			{Err: usecase.ErrCycleInFlight, Status: http.StatusConflict, Message: "a check is already in flight"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "permission check failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "check completed"})
}

// Logout godoc
// @Summary End the session
// @Description Terminates the guarded session. Later calls are no-ops.
// @Tags Session
// @Accept json
// @Param request body LogoutRequest false "Optional reason"
// @Success 202 {object} MessageResponse
// @Router /v1/session/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
			return
		}
	}

	h.terminator.Terminate(c.Request.Context(), strings.TrimSpace(req.Reason))
	c.JSON(http.StatusAccepted, MessageResponse{Message: "session terminated"})
}

// AcknowledgeNotice godoc
// @Summary Acknowledge the revocation dialog
// @Description Skips the remaining countdown and terminates immediately.
// @Tags Session
// @Success 202 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /v1/session/notice/ack [post]
func (h *SessionHandler) AcknowledgeNotice(c *gin.Context) {
	h.mu.RLock()
	notice := h.notice
	h.mu.RUnlock()

	if notice == nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "no pending notice"))
		return
	}

	notice.Acknowledge()
	c.JSON(http.StatusAccepted, MessageResponse{Message: "notice acknowledged"})
}

// Permissions godoc
// @Summary Cached permission snapshot
// @Tags Permissions
// @Produce json
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} PermissionsResponse
// @Failure 503 {object} ErrorResponse
// @Router /v1/permissions [get]
func (h *SessionHandler) Permissions(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	snapshot, ok := h.permissions.Read(c.Request.Context(), refresh)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "permissions not available yet"))
		return
	}

	rights := make(map[string]bool, len(snapshot.Names()))
	for right, granted := range snapshot.Rights() {
		rights[string(right)] = granted
	}

	resp := PermissionsResponse{Rights: rights}
	if at, ok := h.permissions.FetchedAt(); ok {
		resp.FetchedAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

// LoginReason godoc
// @Summary Consume the logout reason
// @Description Returns the reason once; later calls get 204.
// @Tags Session
// @Produce json
// @Success 200 {object} LoginReasonResponse
// @Success 204
// @Router /v1/login/reason [get]
func (h *SessionHandler) LoginReason(c *gin.Context) {
	reason, ok, err := h.reasons.Take(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to read logout reason"))
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, LoginReasonResponse{Reason: reason})
}

func newNoticePayload(notice domain.RevocationNotice) *NoticePayload {
	rights := make([]string, 0, len(notice.ReportedRights))
	for _, r := range notice.ReportedRights {
		rights = append(rights, string(r))
	}
	return &NoticePayload{
		ReportedRights:   rights,
		StoreUnreachable: notice.StoreUnreachable,
		Reason:           notice.Reason,
		IssuedAt:         notice.IssuedAt,
	}
}

var _ port.Navigator = (*SessionHandler)(nil)
