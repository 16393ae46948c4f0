package handler

import (
	"encoding/csv"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teranga-edu/gesco-api/internal/models"
	"github.com/teranga-edu/gesco-api/internal/service"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
	"github.com/teranga-edu/gesco-api/pkg/export"
	"github.com/teranga-edu/gesco-api/pkg/response"
)

// ImportHandler exposes the bulk roster import endpoints. Files arrive as
// multipart CSV uploads under the "file" form field.
type ImportHandler struct {
	imports *service.ImportService
	csv     *export.CSVExporter
}

// NewImportHandler constructs ImportHandler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports, csv: export.NewCSVExporter()}
}

// rowsFromUpload reads the uploaded CSV into header-keyed rows. Short
// records are padded so a trailing empty column never drops a field.
func (h *ImportHandler) rowsFromUpload(c *gin.Context) ([]models.ImportRow, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fichier manquant")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "fichier illisible")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fichier vide ou en-tête manquant")
	}

	var rows []models.ImportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format CSV invalide")
		}
		row := models.ImportRow{}
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Validate godoc
// @Summary Validate an import file without touching the database
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV roster file"
// @Success 200 {object} response.Envelope
// @Router /imports/validate [post]
func (h *ImportHandler) Validate(c *gin.Context) {
	rows, err := h.rowsFromUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report := h.imports.ValidateBatch(rows)
	response.JSON(c, http.StatusOK, report, nil)
}

// Preview godoc
// @Summary Dry-run analysis of an import file
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV roster file"
// @Success 200 {object} response.Envelope
// @Router /imports/preview [post]
func (h *ImportHandler) Preview(c *gin.Context) {
	rows, err := h.rowsFromUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	preview, err := h.imports.Preview(c.Request.Context(), rows)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Reconcile godoc
// @Summary Import a roster file, creating and updating students
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV roster file"
// @Success 200 {object} response.Envelope
// @Router /imports [post]
func (h *ImportHandler) Reconcile(c *gin.Context) {
	rows, err := h.rowsFromUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.imports.Reconcile(c.Request.Context(), rows)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Template godoc
// @Summary Download the empty roster template
// @Tags Imports
// @Produce text/csv
// @Success 200 {file} binary
// @Router /imports/template [get]
func (h *ImportHandler) Template(c *gin.Context) {
	data, err := h.csv.Render(export.Dataset{Headers: models.ImportHeaders})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="modele_import_eleves.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}
