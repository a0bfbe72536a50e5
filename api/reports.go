package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sightlinehq/sightline/internal/classify"
	"github.com/sightlinehq/sightline/internal/models"
	"github.com/sightlinehq/sightline/internal/pipeline"
	"github.com/sightlinehq/sightline/pkg/repository"
)

// maxUploadBytes caps the multipart evidence image size.
const maxUploadBytes = 10 << 20

type ReportsHandler struct {
	pipe        *pipeline.Pipeline
	reports     repository.ReportRepo
	maxPageSize int
}

func NewReportsHandler(pipe *pipeline.Pipeline, reports repository.ReportRepo, maxPageSize int) *ReportsHandler {
	if maxPageSize <= 0 {
		maxPageSize = 50
	}
	return &ReportsHandler{pipe: pipe, reports: reports, maxPageSize: maxPageSize}
}

type submitReportJSON struct {
	WantedID    string   `json:"wantedId"`
	Description string   `json:"description,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
}

type submitReportResponse struct {
	ID string `json:"id"`
}

// reportItem decorates a stored report with its derived severity tier.
type reportItem struct {
	models.Report
	Tier classify.Tier `json:"tier"`
}

// SubmitReport accepts multipart (evidence image + fields) or plain JSON
// (description-only or pre-uploaded image reference) submissions. The caller
// always gets the report id back promptly; matching resolves asynchronously.
func (h *ReportsHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseSubmission(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := h.pipe.SubmitReport(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, submitReportResponse{ID: id}, http.StatusAccepted)
}

func (h *ReportsHandler) parseSubmission(r *http.Request) (pipeline.SubmitReportInput, error) {
	var in pipeline.SubmitReportInput

	ct := r.Header.Get("Content-Type")
	if ct != "" && len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return in, models.Validationf("body", "invalid multipart form")
		}
		in.WantedID = r.FormValue("wanted_id")
		in.Description = r.FormValue("description")

		var err error
		if in.Latitude, err = optionalFloat(r.FormValue("latitude")); err != nil {
			return in, models.Validationf("latitude", "not a number")
		}
		if in.Longitude, err = optionalFloat(r.FormValue("longitude")); err != nil {
			return in, models.Validationf("longitude", "not a number")
		}

		file, header, err := r.FormFile("image")
		if err == nil {
			defer file.Close()
			data, rerr := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
			if rerr != nil {
				return in, models.Validationf("image", "unreadable file")
			}
			if len(data) > maxUploadBytes {
				return in, models.Validationf("image", "file too large")
			}
			in.ImageData = data
			in.ContentType = header.Header.Get("Content-Type")
		}
		return in, nil
	}

	var body submitReportJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return in, models.Validationf("body", "invalid json")
	}
	in.WantedID = body.WantedID
	in.Description = body.Description
	in.Latitude = body.Latitude
	in.Longitude = body.Longitude
	in.ImageURL = body.ImageURL
	return in, nil
}

// ListReports serves paginated, most-recent-first report listings for
// dashboards: 1-based pageNumber, pageSize capped at the configured maximum.
func (h *ReportsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageNumber := 1
	if v := q.Get("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, models.Validationf("pageNumber", "not a number"))
			return
		}
		pageNumber = n
	}
	pageSize := 20
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, models.Validationf("pageSize", "not a number"))
			return
		}
		pageSize = n
	}

	if pageNumber < 1 {
		writeError(w, models.Validationf("pageNumber", "must be >= 1"))
		return
	}
	if pageSize < 1 {
		writeError(w, models.Validationf("pageSize", "must be >= 1"))
		return
	}
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}

	offset := (pageNumber - 1) * pageSize
	reports, err := h.reports.ListReports(r.Context(), pageSize, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := h.reports.CountReports(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]reportItem, 0, len(reports))
	for _, rep := range reports {
		items = append(items, reportItem{Report: rep, Tier: classify.Classify(rep.Status, rep.Matches)})
	}

	writeJSON(w, map[string]any{
		"items":      items,
		"totalCount": total,
	}, http.StatusOK)
}

func (h *ReportsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rep, err := h.reports.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, reportItem{Report: *rep, Tier: classify.Classify(rep.Status, rep.Matches)}, http.StatusOK)
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
