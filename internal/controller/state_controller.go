package controller

import (
	"errors"
	"strconv"

	"presencia_backend/internal/model"
	"presencia_backend/internal/service"
	"presencia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type StateController struct {
	Presence *service.PresenceService
	Query    *service.StateQueryService
}

func NewStateController(presence *service.PresenceService, query *service.StateQueryService) *StateController {
	return &StateController{Presence: presence, Query: query}
}

type ChangeStateRequest struct {
	State  string `json:"state" binding:"required"`
	Reason string `json:"reason"`
}

// ChangeState godoc
// @Summary Declare a presence state change
// @Description Closes the current ledger entry and opens one for the new state.
// @Tags state
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body ChangeStateRequest true "target state"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response "unknown state"
// @Failure 409 {object} util.Response "no active session"
// @Router /api/state [put]
func (c *StateController) ChangeState(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req ChangeStateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	meta := service.RequestMeta{
		IPAddress: ctx.ClientIP(),
		UserAgent: ctx.Request.UserAgent(),
	}
	result, err := c.Presence.ChangeState(claims.UserID, model.UserState(req.State), req.Reason, model.ActorUser, meta)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidState):
			util.BadRequest(ctx, "unknown state: "+req.State)
		case errors.Is(err, util.ErrNoActiveSession):
			util.Error(ctx, 409, "no active session")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// CurrentStatus godoc
// @Summary Current state and timeout outlook
// @Tags state
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/state/current [get]
func (c *StateController) CurrentStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.Query.CurrentStatusFor(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// History returns the user's ledger entries, newest first.
func (c *StateController) History(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pagination(ctx)
	entries, total, err := c.Query.HistoryFor(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{
		List:  entries,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// SessionLedger returns the full ledger of one of the user's sessions.
func (c *StateController) SessionLedger(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	sessionID := ctx.Param("id")
	entries, err := c.Query.SessionLedger(sessionID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if len(entries) > 0 && entries[0].UserID != claims.UserID && claims.Role != model.Admin {
		util.Forbidden(ctx)
		return
	}
	util.Success(ctx, entries)
}

// TeamOverview godoc
// @Summary Live state of everyone in session
// @Tags state
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/admin/team [get]
func (c *StateController) TeamOverview(ctx *gin.Context) {
	overview, err := c.Query.TeamOverview()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}

func pagination(ctx *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
