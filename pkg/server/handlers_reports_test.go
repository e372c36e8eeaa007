package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/perchsocial/perch/pkg/social"
)

func TestReportWorkflow(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.register("reporter")
	target := env.register("troublemaker")
	_, adminToken := env.createAdmin("moderator")

	rec := env.do(http.MethodPost, "/v1/reports", reporter.Token, map[string]string{
		"subject_type": "user",
		"subject_id":   target.User.ID,
		"reason":       "spamming follows",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from report, got %d (%s)", rec.Code, rec.Body.String())
	}

	var report social.Report
	decodeData(t, rec, &report)
	if report.Status != social.ReportStatusOpen {
		t.Errorf("expected open status, got %q", report.Status)
	}
	if report.ReporterID != reporter.User.ID {
		t.Errorf("expected reporter %q, got %q", reporter.User.ID, report.ReporterID)
	}

	// The queue is admin-only and holds the report.
	rec = env.do(http.MethodGet, "/v1/admin/reports", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from the queue, got %d (%s)", rec.Code, rec.Body.String())
	}
	var queue []social.Report
	decodeData(t, rec, &queue)
	if len(queue) != 1 || queue[0].ID != report.ID {
		t.Fatalf("expected the report in the queue, got %+v", queue)
	}

	rec = env.do(http.MethodPost, "/v1/admin/reports/"+report.ID+"/resolve", adminToken, map[string]string{
		"resolution": "account warned",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from resolve, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resolved social.Report
	decodeData(t, rec, &resolved)
	if resolved.Status != social.ReportStatusResolved {
		t.Errorf("expected resolved status, got %q", resolved.Status)
	}
	if resolved.Resolution != "account warned" {
		t.Errorf("unexpected resolution %q", resolved.Resolution)
	}
	if resolved.ResolvedAt == nil {
		t.Error("expected a resolution timestamp")
	}

	// Resolved reports leave the queue, and resolving twice conflicts.
	rec = env.do(http.MethodGet, "/v1/admin/reports", adminToken, nil)
	decodeData(t, rec, &queue)
	if len(queue) != 0 {
		t.Errorf("expected an empty queue, got %d entries", len(queue))
	}

	rec = env.do(http.MethodPost, "/v1/admin/reports/"+report.ID+"/resolve", adminToken, map[string]string{
		"resolution": "again",
	})
	resp := wantError(t, rec, http.StatusConflict, "CONFLICT")
	if resp.Error.Message != "Report already resolved" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
}

func TestReportPostSubject(t *testing.T) {
	env := newTestEnv(t)
	author := env.register("author")
	reporter := env.register("reporter")

	post := env.createPost(author.Token, "objectionable")

	rec := env.do(http.MethodPost, "/v1/reports", reporter.Token, map[string]string{
		"subject_type": "post",
		"subject_id":   post.ID,
		"reason":       "breaks the rules",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var report social.Report
	decodeData(t, rec, &report)
	if report.SubjectType != social.SubjectTypePost || report.SubjectID != post.ID {
		t.Errorf("unexpected subject %q/%q", report.SubjectType, report.SubjectID)
	}
}

func TestReportValidation(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.register("reporter")
	target := env.register("target")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{
			"missing reason",
			map[string]string{"subject_type": "user", "subject_id": target.User.ID},
			http.StatusBadRequest, "VALIDATION_ERROR",
		},
		{
			"reason too long",
			map[string]string{
				"subject_type": "user",
				"subject_id":   target.User.ID,
				"reason":       strings.Repeat("x", social.MaxReportReasonLen+1),
			},
			http.StatusBadRequest, "VALIDATION_ERROR",
		},
		{
			"bad subject type",
			map[string]string{"subject_type": "comment", "subject_id": target.User.ID, "reason": "r"},
			http.StatusBadRequest, "VALIDATION_ERROR",
		},
		{
			"unknown user subject",
			map[string]string{"subject_type": "user", "subject_id": uuid.NewString(), "reason": "r"},
			http.StatusNotFound, "NOT_FOUND",
		},
		{
			"unknown post subject",
			map[string]string{"subject_type": "post", "subject_id": uuid.NewString(), "reason": "r"},
			http.StatusNotFound, "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/v1/reports", reporter.Token, tt.body)
			wantError(t, rec, tt.status, tt.code)
		})
	}
}

func TestAdminSurfaceAuthorization(t *testing.T) {
	env := newTestEnv(t)
	regular := env.register("regular")

	// Anonymous callers are unauthorized, regular users forbidden.
	rec := env.do(http.MethodGet, "/v1/admin/reports", "", nil)
	wantError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = env.do(http.MethodGet, "/v1/admin/reports", regular.Token, nil)
	resp := wantError(t, rec, http.StatusForbidden, "FORBIDDEN")
	if resp.Error.Message != "Insufficient permissions" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}

	rec = env.do(http.MethodPost, "/v1/admin/reports/"+uuid.NewString()+"/resolve", regular.Token, map[string]string{
		"resolution": "nope",
	})
	wantError(t, rec, http.StatusForbidden, "FORBIDDEN")
}

func TestResolveReportValidation(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createAdmin("moderator")

	rec := env.do(http.MethodPost, "/v1/admin/reports/"+uuid.NewString()+"/resolve", adminToken, map[string]string{
		"resolution": "handled",
	})
	resp := wantError(t, rec, http.StatusNotFound, "NOT_FOUND")
	if resp.Error.Message != "Report not found" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}

	rec = env.do(http.MethodPost, "/v1/admin/reports/"+uuid.NewString()+"/resolve", adminToken, map[string]string{})
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}
