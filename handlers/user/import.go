package user

import (
	"bufio"
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/sse"
	"github.com/xuri/excelize/v2"
)

const (
	// maxImportRows caps one batch; larger uploads must be split
	maxImportRows = 1000

	// maxImportFileSize caps XLSX uploads (10MB)
	maxImportFileSize = 10 * 1024 * 1024
)

var errMissingHeader = errors.New("first row must be a header containing at least a username column")

// ImportUsersRequest represents the JSON request body for a bulk user import
type ImportUsersRequest struct {
	Users []services.RawUserInput `json:"users"`
}

// ImportUsers handles POST /api/v1/users/import.
// With redis available the import runs in the background and the response
// carries a job_id for the events endpoint; without it the import runs
// synchronously and the full result is returned.
func (h *UserHandler) ImportUsers(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can import users")
	}

	var req ImportUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if len(req.Users) == 0 {
		return response.BadRequest(c, "At least one user is required")
	}
	if len(req.Users) > maxImportRows {
		return response.BadRequest(c, "Too many rows; split the import into smaller batches")
	}

	return h.startImport(c, admin, req.Users)
}

// ImportUsersXLSX handles POST /api/v1/users/import/xlsx.
// Expects a multipart upload with the rows in the first sheet; the header row
// names the columns (username, first_name, last_name, email, phone, address).
func (h *UserHandler) ImportUsersXLSX(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can import users")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "File is required")
	}

	if file.Size > maxImportFileSize {
		return response.BadRequest(c, "File size exceeds maximum allowed size of 10MB")
	}

	if !strings.HasSuffix(strings.ToLower(file.Filename), ".xlsx") {
		return response.BadRequest(c, "Only XLSX files are supported for user import")
	}

	fileContent, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to open file")
	}
	defer fileContent.Close()

	workbook, err := excelize.OpenReader(fileContent)
	if err != nil {
		return response.BadRequest(c, "Failed to read workbook: "+err.Error())
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return response.BadRequest(c, "Workbook has no sheets")
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return response.BadRequest(c, "Failed to read rows: "+err.Error())
	}

	candidates, err := parseImportRows(rows)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if len(candidates) == 0 {
		return response.BadRequest(c, "No data rows found below the header")
	}
	if len(candidates) > maxImportRows {
		return response.BadRequest(c, "Too many rows; split the import into smaller batches")
	}

	return h.startImport(c, admin, candidates)
}

// startImport runs the batch through the importer. The background path tracks
// progress in redis row by row; the synchronous path just returns the result.
func (h *UserHandler) startImport(c *fiber.Ctx, admin *model.User, candidates []services.RawUserInput) error {
	if h.progressTracker == nil {
		importer := services.NewImporterService(h.db)
		result, err := importer.ImportUsers(c.Context(), admin.SchoolID, candidates)
		if err != nil {
			return response.InternalServerError(c, "Import failed: "+err.Error())
		}
		return response.Success(c, result)
	}

	job, err := h.progressTracker.CreateJob(c.Context(), admin.ID, admin.SchoolID, len(candidates))
	if err != nil {
		return response.Conflict(c, err.Error())
	}

	adminID := admin.ID
	schoolID := admin.SchoolID

	go func() {
		// The request context dies with the response; the import keeps
		// its own
		ctx := context.Background()
		jobID := job.JobID

		h.progressTracker.UpdateProgress(ctx, jobID, services.ImportProgressEvent{
			Type:      "started",
			JobID:     jobID,
			Message:   "Import started",
			TotalRows: len(candidates),
			Timestamp: time.Now(),
		})

		importer := services.NewImporterService(h.db)
		importer.OnProgress = func(processed, total, created, skipped int) {
			event := services.ImportProgressEvent{
				Type:          "progress",
				JobID:         jobID,
				Progress:      services.ImportProgress(processed, total),
				ProcessedRows: processed,
				CreatedCount:  created,
				SkippedCount:  skipped,
				Timestamp:     time.Now(),
			}
			if err := h.progressTracker.UpdateProgress(ctx, jobID, event); err != nil {
				log.Printf("Failed to update import job %s: %v", jobID, err)
			}
		}

		result, err := importer.ImportUsers(ctx, schoolID, candidates)
		if err != nil {
			h.progressTracker.UpdateProgress(ctx, jobID, services.ImportProgressEvent{
				Type:          "error",
				JobID:         jobID,
				Message:       "Import failed",
				ErrorMessage:  err.Error(),
				ProcessedRows: len(result.Created) + len(result.Skipped),
				CreatedCount:  len(result.Created),
				SkippedCount:  len(result.Skipped),
				Timestamp:     time.Now(),
			})
			return
		}

		h.progressTracker.UpdateProgress(ctx, jobID, services.ImportProgressEvent{
			Type:          "complete",
			JobID:         jobID,
			Progress:      100,
			Message:       "Import finished",
			ProcessedRows: len(candidates),
			CreatedCount:  len(result.Created),
			SkippedCount:  len(result.Skipped),
			Timestamp:     time.Now(),
		})

		if err := h.notificationService.NotifyImportFinished(ctx, adminID, len(candidates), len(result.Created), len(result.Skipped)); err != nil {
			log.Printf("Failed to notify admin %d about import %s: %v", adminID, jobID, err)
		}
	}()

	return response.Success(c, fiber.Map{
		"job_id":     job.JobID,
		"status":     job.Status,
		"total_rows": job.TotalRows,
		"events_url": "/api/v1/users/import/" + job.JobID + "/events",
	})
}

// ImportEvents handles GET /api/v1/users/import/:job_id/events.
// Streams job progress as SSE by polling the redis job state until the job
// settles or the poll window runs out.
func (h *UserHandler) ImportEvents(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can follow imports")
	}

	if h.progressTracker == nil {
		return response.InternalServerError(c, "Progress tracking not available")
	}

	jobID := c.Params("job_id")

	job, err := h.progressTracker.GetJob(c.Context(), jobID)
	if err != nil {
		return response.NotFound(c, "Job not found or expired")
	}

	if job.SchoolID != admin.SchoolID {
		return response.Forbidden(c, "Access denied")
	}

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The Fiber context is not valid inside the stream writer
		ctx := context.Background()

		if err := sse.Send(w, sse.Event{Event: "state", Data: job}); err != nil {
			return
		}
		if jobSettled(job) {
			sse.Send(w, sse.Event{Event: terminalEventType(job), Data: job})
			return
		}

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		// Poll window bounds a stream whose job state expired mid-run
		deadline := time.After(30 * time.Minute)

		lastProcessed := job.ProcessedRows

		for {
			select {
			case <-deadline:
				sse.SendError(w, context.DeadlineExceeded)
				return

			case <-keepalive.C:
				if err := sse.SendKeepAlive(w); err != nil {
					return
				}

			case <-ticker.C:
				current, err := h.progressTracker.GetJob(ctx, jobID)
				if err != nil {
					sse.SendError(w, err)
					return
				}

				if jobSettled(current) {
					sse.Send(w, sse.Event{Event: terminalEventType(current), Data: current})
					return
				}

				if current.ProcessedRows != lastProcessed {
					lastProcessed = current.ProcessedRows
					if err := sse.SendProgress(w, current); err != nil {
						return
					}
				}
			}
		}
	})

	return nil
}

// ActiveImport handles GET /api/v1/users/import/active.
// Returns the admin's running import, if any.
func (h *UserHandler) ActiveImport(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can follow imports")
	}

	if h.progressTracker == nil {
		return response.Success(c, fiber.Map{"has_active_job": false, "job": nil})
	}

	activeJobID, err := h.progressTracker.GetActiveJob(c.Context(), admin.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to check active imports")
	}
	if activeJobID == "" {
		return response.Success(c, fiber.Map{"has_active_job": false, "job": nil})
	}

	job, err := h.progressTracker.GetJob(c.Context(), activeJobID)
	if err != nil {
		// Job state expired; drop the stale active marker
		h.progressTracker.ClearActiveJob(c.Context(), admin.ID)
		return response.Success(c, fiber.Map{"has_active_job": false, "job": nil})
	}

	return response.Success(c, fiber.Map{"has_active_job": true, "job": job})
}

func jobSettled(job *model.ImportJob) bool {
	return job.Status == model.JobStatusCompleted ||
		job.Status == model.JobStatusFailed ||
		job.Status == model.JobStatusCancelled
}

func terminalEventType(job *model.ImportJob) string {
	if job.Status == model.JobStatusCompleted {
		return "complete"
	}
	return "error"
}

// parseImportRows maps spreadsheet rows to import candidates. The first row
// must be a header naming the columns; header matching ignores case, spaces
// and underscores, so "First Name" and "first_name" both work.
func parseImportRows(rows [][]string) ([]services.RawUserInput, error) {
	if len(rows) == 0 {
		return nil, errMissingHeader
	}

	columns := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		key := normalizeHeader(header)
		if key != "" {
			columns[key] = i
		}
	}

	if _, ok := columns["username"]; !ok {
		return nil, errMissingHeader
	}

	cell := func(row []string, key string) string {
		idx, ok := columns[key]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	candidates := make([]services.RawUserInput, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		candidate := services.RawUserInput{
			Username:  cell(row, "username"),
			FirstName: cell(row, "firstname"),
			LastName:  cell(row, "lastname"),
			Email:     cell(row, "email"),
			Phone:     cell(row, "phone"),
			Address:   cell(row, "address"),
		}
		if candidate == (services.RawUserInput{}) {
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	header = strings.ReplaceAll(header, " ", "")
	header = strings.ReplaceAll(header, "_", "")
	return header
}
