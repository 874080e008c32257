package controller

import (
	"errors"

	"presencia_backend/internal/service"
	"presencia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// Register godoc
// @Summary Register a new employee account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.RegisterInput true "registration data"
// @Success 201 {object} util.Response
// @Failure 409 {object} util.Response "email already registered"
// @Router /api/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req service.RegisterInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AuthService.Register(req)
	if err != nil {
		if errors.Is(err, util.ErrEmailRegistered) {
			util.Error(ctx, 409, "email already registered")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, gin.H{"id": user.ID})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary Authenticate and open a work session
// @Description A successful login opens a work session in the desconectado state.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "credentials"
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response
// @Router /api/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	meta := service.RequestMeta{
		IPAddress: ctx.ClientIP(),
		UserAgent: ctx.Request.UserAgent(),
	}
	result, err := c.AuthService.Login(req.Email, req.Password, meta)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidCredentials):
			util.Unauthorized(ctx)
		case errors.Is(err, util.ErrUserDisabled):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":            result.User.ID,
			"name":          result.User.Name,
			"email":         result.User.Email,
			"role":          result.User.Role,
			"sector":        result.User.Sector,
			"challengeTier": result.User.ChallengeTier,
		},
		"session": gin.H{
			"id":           result.Session.ID,
			"sessionStart": result.Session.SessionStart,
			"currentState": result.Session.CurrentState,
		},
	})
}

// Logout godoc
// @Summary Close the session and revoke the token
// @Tags auth
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	token := ctx.GetString("token")
	summary, err := c.AuthService.Logout(ctx.Request.Context(), token, claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	if summary == nil {
		util.Success(ctx, gin.H{"message": "logged out"})
		return
	}
	util.Success(ctx, gin.H{"message": "logged out", "summary": summary})
}

// GetProfile returns the authenticated user's account data.
func (c *AuthController) GetProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	user, err := c.AuthService.Users.FindByID(claims.UserID)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	util.Success(ctx, gin.H{
		"id":            user.ID,
		"name":          user.Name,
		"email":         user.Email,
		"role":          user.Role,
		"sector":        user.Sector,
		"currentState":  user.CurrentState,
		"isInSession":   user.IsInSession,
		"challengeTier": user.ChallengeTier,
		"createdAt":     user.CreatedAt,
	})
}
