package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/teranga-edu/gesco-api/internal/service"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
	"github.com/teranga-edu/gesco-api/pkg/response"
)

// ReportHandler exposes report card, ranking and export endpoints.
type ReportHandler struct {
	reports    *service.ReportService
	averages   *service.AverageService
	exports    *service.ExportService
	schoolYear string
}

// NewReportHandler constructs ReportHandler. schoolYear is the fallback
// applied when requests omit the year parameter.
func NewReportHandler(reports *service.ReportService, averages *service.AverageService, exports *service.ExportService, schoolYear string) *ReportHandler {
	return &ReportHandler{reports: reports, averages: averages, exports: exports, schoolYear: schoolYear}
}

func termParam(c *gin.Context) (int, bool) {
	term, err := strconv.Atoi(c.DefaultQuery("term", "1"))
	if err != nil || term < 1 || term > 3 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "trimestre invalide"))
		return 0, false
	}
	return term, true
}

func (h *ReportHandler) yearParam(c *gin.Context) string {
	if year := c.Query("year"); year != "" {
		return year
	}
	return h.schoolYear
}

// SubjectAverage godoc
// @Summary Subject average for one student and term
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param subject query string true "Subject"
// @Param term query int true "Term (1-3)"
// @Param year query string false "School year"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/averages/subject [get]
func (h *ReportHandler) SubjectAverage(c *gin.Context) {
	term, ok := termParam(c)
	if !ok {
		return
	}
	average, err := h.averages.SubjectAverage(c.Request.Context(), c.Param("id"), c.Query("subject"), term, h.yearParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, average, nil)
}

// OverallAverage godoc
// @Summary Overall weighted average for one student and term
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param term query int true "Term (1-3)"
// @Param year query string false "School year"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/averages [get]
func (h *ReportHandler) OverallAverage(c *gin.Context) {
	term, ok := termParam(c)
	if !ok {
		return
	}
	average, err := h.averages.OverallAverage(c.Request.Context(), c.Param("id"), term, h.yearParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, average, nil)
}

// ReportCard godoc
// @Summary Build a student report card
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param term query int true "Term (1-3)"
// @Param year query string false "School year"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/report [get]
func (h *ReportHandler) ReportCard(c *gin.Context) {
	term, ok := termParam(c)
	if !ok {
		return
	}
	card, err := h.reports.BuildReport(c.Request.Context(), c.Param("id"), term, h.yearParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// ReportCardPDF godoc
// @Summary Download a student report card as PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param term query int true "Term (1-3)"
// @Param year query string false "School year"
// @Success 200 {file} binary
// @Router /students/{id}/report/pdf [get]
func (h *ReportHandler) ReportCardPDF(c *gin.Context) {
	term, ok := termParam(c)
	if !ok {
		return
	}
	file, err := h.exports.ReportCardPDF(c.Request.Context(), c.Param("id"), term, h.yearParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

// Ranking godoc
// @Summary Rank a class for one term
// @Tags Reports
// @Produce json
// @Param id path string true "Class ID"
// @Param term query int true "Term (1-3)"
// @Param year query string false "School year"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/ranking [get]
func (h *ReportHandler) Ranking(c *gin.Context) {
	term, ok := termParam(c)
	if !ok {
		return
	}
	ranking, err := h.averages.ClassRanking(c.Request.Context(), c.Param("id"), term, h.yearParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranking, nil)
}

// RankingExport godoc
// @Summary Download a class ranking as CSV or PDF
// @Tags Reports
// @Produce application/octet-stream
// @Param id path string true "Class ID"
// @Param term query int true "Term (1-3)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /classes/{id}/ranking/export [get]
func (h *ReportHandler) RankingExport(c *gin.Context) {
	term, ok := termParam(c)
	if !ok {
		return
	}
	var (
		file *service.ExportFile
		err  error
	)
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		file, err = h.exports.RankingCSV(c.Request.Context(), c.Param("id"), term, h.yearParam(c))
	case "pdf":
		file, err = h.exports.RankingPDF(c.Request.Context(), c.Param("id"), term, h.yearParam(c))
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format non supporté"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

// RosterExport godoc
// @Summary Download a class roster as CSV
// @Tags Reports
// @Produce text/csv
// @Param id path string true "Class ID"
// @Success 200 {file} binary
// @Router /classes/{id}/roster/export [get]
func (h *ReportHandler) RosterExport(c *gin.Context) {
	file, err := h.exports.RosterCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

func serveFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", "attachment; filename=\""+file.Filename+"\"")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
