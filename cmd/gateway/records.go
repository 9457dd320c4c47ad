package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"village-assist/internal/app"
	"village-assist/internal/httputil"
	"village-assist/internal/notify"
	"village-assist/internal/queue"
	"village-assist/internal/store"
)

const serviceApplication = "Service Application"

type applyRequest struct {
	Name    string `validate:"required,max=200"`
	Email   string `validate:"omitempty,email,max=200"`
	Phone   string `validate:"required,max=20"`
	Purpose string `validate:"required,max=2000"`
}

func applyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseForm(); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid form")
			return
		}
		req := applyRequest{
			Name:    strings.TrimSpace(r.PostFormValue("name")),
			Email:   strings.TrimSpace(r.PostFormValue("email")),
			Phone:   strings.TrimSpace(r.PostFormValue("phone")),
			Purpose: strings.TrimSpace(r.PostFormValue("purpose")),
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		details := map[string]string{"email": req.Email, "phone": req.Phone, "purpose": req.Purpose}
		if m := mobileFromContext(ctx); m != "" {
			details["verified_mobile"] = m
		}
		a, err := deps.Store.CreateApplication(ctx, store.Application{
			ApplicantName:   req.Name,
			ApplicationType: serviceApplication,
			Details:         details,
			Status:          store.ApplicationSubmitted,
		})
		if err != nil {
			deps.Log.Error("failed to save application", "err", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not save application")
			return
		}

		enqueueNotify(ctx, deps, req.Phone, a.Ticket())
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "ticket_number": a.Ticket()})
	}
}

type complaintRequest struct {
	Name       string   `json:"name" validate:"required,max=200"`
	Phone      string   `json:"phone" validate:"required,max=20"`
	Department string   `json:"department" validate:"required,max=200"`
	Details    string   `json:"details" validate:"required,max=4000"`
	Photo      string   `json:"photo" validate:"required"`
	Latitude   *float64 `json:"latitude" validate:"required,latitude"`
	Longitude  *float64 `json:"longitude" validate:"required,longitude"`
}

func submitComplaintHandler(deps app.Deps) http.HandlerFunc {
	maxSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req complaintRequest
		if !decodeJSONLimit(deps, w, r, maxSize, &req) {
			return
		}
		photo, err := decodeDataURL(req.Photo)
		if err != nil {
			deps.Log.Warn("invalid complaint photo", "err", err)
			httputil.WriteError(w, http.StatusBadRequest, "photo must be a base64 image")
			return
		}
		filename, err := savePhoto(deps.Config.UploadDir, photo)
		if err != nil {
			deps.Log.Error("failed to save complaint photo", "err", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not save photo")
			return
		}

		c, err := deps.Store.CreateComplaint(ctx, store.Complaint{
			Name:          req.Name,
			Phone:         req.Phone,
			Department:    req.Department,
			Details:       req.Details,
			PhotoFilename: filename,
			Latitude:      *req.Latitude,
			Longitude:     *req.Longitude,
			Status:        store.ComplaintInReview,
		})
		if err != nil {
			deps.Log.Error("failed to save complaint", "err", err)
			if rmErr := os.Remove(filepath.Join(deps.Config.UploadDir, "complaints", filename)); rmErr != nil {
				deps.Log.Warn("failed to remove orphaned complaint photo", "file", filename, "err", rmErr)
			}
			httputil.WriteError(w, http.StatusInternalServerError, "could not save complaint")
			return
		}

		enqueueNotify(ctx, deps, req.Phone, c.Ticket())
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"message":   "Complaint registered",
			"ticket_id": c.Ticket(),
		})
	}
}

// decodeDataURL accepts "data:image/png;base64,...." or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data url")
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty photo")
	}
	return data, nil
}

func savePhoto(uploadDir string, data []byte) (string, error) {
	dir := filepath.Join(uploadDir, "complaints")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("complaint_%s.png", uuid.NewString())
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// enqueueNotify schedules an SMS acknowledgement. Failures are logged only;
// the record is already saved.
func enqueueNotify(ctx context.Context, deps app.Deps, mobile, ticket string) {
	task, err := queue.NewTask(queue.TaskTypeNotify, queue.NotifyPayload{
		Mobile:  mobile,
		Ticket:  ticket,
		Message: notify.Acknowledgement(ticket),
	})
	if err == nil {
		err = queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond)
	}
	if err != nil {
		deps.Log.Error("failed to enqueue acknowledgement", "ticket", ticket, "err", err)
	}
}

type recordItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Details    string `json:"details"`
	StatusText string `json:"status_text"`
	Type       string `json:"type"`
}

func statusText(status string) string {
	switch status {
	case store.ApplicationSubmitted:
		return "Submitted"
	case store.ComplaintInReview:
		return "In Review"
	case "":
		return "Unknown"
	}
	first, size := utf8.DecodeRuneInString(status)
	return string(unicode.ToUpper(first)) + strings.ReplaceAll(status[size:], "_", " ")
}

func listApplicationsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			apps       []store.Application
			complaints []store.Complaint
		)
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			apps, err = deps.Store.ListApplications(ctx)
			return err
		})
		g.Go(func() (err error) {
			complaints, err = deps.Store.ListComplaints(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			deps.Log.Error("failed to list records", "err", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not load applications")
			return
		}

		items := make([]recordItem, 0, len(apps)+len(complaints))
		for _, a := range apps {
			items = append(items, recordItem{
				ID:         a.Ticket(),
				Title:      a.ApplicationType,
				Details:    a.Details["purpose"],
				StatusText: statusText(a.Status),
				Type:       "application",
			})
		}
		for _, c := range complaints {
			items = append(items, recordItem{
				ID:         c.Ticket(),
				Title:      c.Department + " complaint",
				Details:    c.Details,
				StatusText: statusText(c.Status),
				Type:       "complaint",
			})
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "applications": items})
	}
}
