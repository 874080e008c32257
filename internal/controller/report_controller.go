package controller

import (
	"time"

	"presencia_backend/internal/service"
	"presencia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReportController struct {
	Productivity *service.ProductivityService
}

func NewReportController(productivity *service.ProductivityService) *ReportController {
	return &ReportController{Productivity: productivity}
}

// Daily godoc
// @Summary Daily productivity metrics
// @Tags report
// @Security ApiKeyAuth
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} util.Response
// @Router /api/report/daily [get]
func (c *ReportController) Daily(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	day := time.Now()
	if raw := ctx.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			util.BadRequest(ctx, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	metrics, err := c.Productivity.DailyMetricsFor(claims.UserID, day)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, metrics)
}

// Weekly godoc
// @Summary Weekly report with flex friday status
// @Tags report
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/report/weekly [get]
func (c *ReportController) Weekly(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	report, err := c.Productivity.WeeklyReportFor(claims.UserID, time.Now())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, report)
}
