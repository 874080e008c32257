package controller

import (
	"errors"

	"presencia_backend/internal/service"
	"presencia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ChallengeController struct {
	Challenges *service.ChallengeService
}

func NewChallengeController(challenges *service.ChallengeService) *ChallengeController {
	return &ChallengeController{Challenges: challenges}
}

// Issue godoc
// @Summary Request the pending challenge, creating it if due
// @Description Polled by the client. Returns 204 while no challenge is due.
// @Tags challenge
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "challenge already pending"
// @Router /api/challenge [post]
func (c *ChallengeController) Issue(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	force := ctx.Query("force") == "true"
	issued, err := c.Challenges.IssueChallenge(claims.UserID, force)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrChallengeNotDue):
			ctx.Status(204)
		case errors.Is(err, util.ErrNoActiveSession):
			util.Error(ctx, 409, "no active session")
		case errors.Is(err, util.ErrChallengeAlreadyPending):
			util.Error(ctx, 409, "a challenge is already pending")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, issued)
}

type RespondRequest struct {
	Answer *int `json:"answer" binding:"required"`
}

// Respond godoc
// @Summary Answer a pending challenge
// @Description A second failure in a row closes the session; that outcome
// comes back as result session_closed, not as an error.
// @Tags challenge
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path string true "challenge id"
// @Param body body RespondRequest true "answer"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "already resolved"
// @Router /api/challenge/{id}/respond [post]
func (c *ChallengeController) Respond(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req RespondRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Challenges.Respond(ctx.Param("id"), claims.UserID, *req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrChallengeNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrChallengeNotOwned):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrChallengeAlreadyResolved):
			util.Error(ctx, 409, "challenge already resolved")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// History returns the user's past challenges, newest first.
func (c *ChallengeController) History(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pagination(ctx)
	challenges, total, err := c.Challenges.History(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{
		List:  challenges,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
