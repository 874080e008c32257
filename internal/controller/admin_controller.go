package controller

import (
	"errors"
	"strconv"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/service"
	"presencia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	AuthService  *service.AuthService
	Presence     *service.PresenceService
	Productivity *service.ProductivityService
	Audit        *repository.AuditRepository
}

func NewAdminController(
	authService *service.AuthService,
	presence *service.PresenceService,
	productivity *service.ProductivityService,
	audit *repository.AuditRepository,
) *AdminController {
	return &AdminController{
		AuthService:  authService,
		Presence:     presence,
		Productivity: productivity,
		Audit:        audit,
	}
}

// DeactivateUser godoc
// @Summary Disable an account and kill its session
// @Tags admin
// @Security ApiKeyAuth
// @Param id path int true "user id"
// @Success 200 {object} util.Response
// @Router /api/admin/users/{id}/deactivate [post]
func (c *AdminController) DeactivateUser(ctx *gin.Context) {
	userID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	if err := c.AuthService.DeactivateUser(uint(userID)); err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"message": "user deactivated"})
}

type ForceStateRequest struct {
	State  string `json:"state" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// ForceState moves an employee to a state on their behalf, e.g. marking a
// sick day as licencia.
func (c *AdminController) ForceState(ctx *gin.Context) {
	userID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	var req ForceStateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	meta := service.RequestMeta{
		IPAddress: ctx.ClientIP(),
		UserAgent: ctx.Request.UserAgent(),
	}
	result, err := c.Presence.ChangeState(uint(userID), model.UserState(req.State), req.Reason, model.ActorAdmin, meta)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidState):
			util.BadRequest(ctx, "unknown state: "+req.State)
		case errors.Is(err, util.ErrNoActiveSession):
			util.Error(ctx, 409, "user has no active session")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}

// UserAuditLog pages through the forced-action audit trail for one user.
func (c *AdminController) UserAuditLog(ctx *gin.Context) {
	userID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	page, limit := pagination(ctx)
	entries, total, err := c.Audit.FindByUserPaged(uint(userID), page, limit)
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

// RefreshUserTier re-evaluates the employee's challenge tier from last
// week's productivity average. Run after the weekly close.
func (c *AdminController) RefreshUserTier(ctx *gin.Context) {
	userID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	tier, err := c.Productivity.RefreshChallengeTier(uint(userID))
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"challengeTier": tier})
}

// UserWeeklyReport lets an admin read any employee's weekly report.
func (c *AdminController) UserWeeklyReport(ctx *gin.Context) {
	userID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	report, err := c.Productivity.WeeklyReportFor(uint(userID), time.Now())
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, report)
}
