package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// employeeStatuses are the task states in which an employee may see and act on a task.
var employeeStatuses = []models.TaskStatus{models.TaskStatusSent, models.TaskStatusRework, models.TaskStatusOnCheck}

// TaskVisibleTo reports whether principal may see task. Moderators see every task; employees only see
// active, published tasks that are unassigned or assigned to them.
func TaskVisibleTo(task *models.Task, principal *models.JWTClaims) bool {
	if task == nil || principal == nil {
		return false
	}
	if principal.IsModerator() {
		return true
	}
	if !task.IsActive {
		return false
	}
	if task.AssignedTo != nil && *task.AssignedTo != principal.UserID {
		return false
	}
	for _, status := range employeeStatuses {
		if task.Status == status {
			return true
		}
	}
	return false
}

// InitialTaskStatus returns the status a new task starts in.
func InitialTaskStatus(publish bool) models.TaskStatus {
	if publish {
		return models.TaskStatusSent
	}
	return models.TaskStatusDraft
}

// ValidateTaskTransition checks that principal may move task to the target status. Role violations return
// FORBIDDEN, tasks an employee cannot see return NOT_FOUND and disallowed source states return
// INVALID_TRANSITION.
func ValidateTaskTransition(task *models.Task, to models.TaskStatus, principal *models.JWTClaims) error {
	if principal == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	if task == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}

	switch to {
	case models.TaskStatusSent:
		if !principal.IsModerator() {
			return appErrors.Clone(appErrors.ErrForbidden, "only moderators can publish tasks")
		}
		if task.Status != models.TaskStatusDraft {
			return invalidTransition(task.Status, to)
		}
	case models.TaskStatusOnCheck:
		if principal.Role != models.RoleEmployee {
			return appErrors.Clone(appErrors.ErrForbidden, "only employees can submit work")
		}
		if !TaskVisibleTo(task, principal) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		switch task.Status {
		case models.TaskStatusSent, models.TaskStatusRework:
		case models.TaskStatusOnCheck:
			if !task.AcceptsSubmission() {
				return appErrors.Clone(appErrors.ErrInvalidTransition, "task target already reached")
			}
		default:
			return invalidTransition(task.Status, to)
		}
	case models.TaskStatusRework:
		if !principal.IsModerator() {
			return appErrors.Clone(appErrors.ErrForbidden, "only moderators can return tasks for rework")
		}
		if task.Status != models.TaskStatusOnCheck {
			return invalidTransition(task.Status, to)
		}
	case models.TaskStatusCompleted:
		if !principal.IsModerator() {
			return appErrors.Clone(appErrors.ErrForbidden, "only moderators can complete tasks")
		}
		if task.Status == models.TaskStatusCompleted {
			return invalidTransition(task.Status, to)
		}
	case models.TaskStatusDraft:
		return invalidTransition(task.Status, to)
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown task status %q", to))
	}
	return nil
}

// DecideReview validates a moderator decision on a report and returns the resulting status.
func DecideReview(report *models.PhotoReport, action models.ReviewAction, reason string, principal *models.JWTClaims) (models.PhotoReportStatus, error) {
	if !principal.IsModerator() {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only moderators can review photo reports")
	}
	var next models.PhotoReportStatus
	switch action {
	case models.ReviewApprove:
		next = models.PhotoReportApproved
	case models.ReviewReject:
		if strings.TrimSpace(reason) == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "reject requires a reason")
		}
		next = models.PhotoReportRejected
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown review action %q", action))
	}
	if report.Status != models.PhotoReportSubmitted {
		return "", appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("photo report is %s", report.Status))
	}
	return next, nil
}

// ValidateReportSubmit checks that principal may submit the draft report.
func ValidateReportSubmit(report *models.PhotoReport, principal *models.JWTClaims) error {
	if principal == nil || principal.Role != models.RoleEmployee {
		return appErrors.Clone(appErrors.ErrForbidden, "only employees can submit photo reports")
	}
	if report.EmployeeID != principal.UserID {
		return appErrors.Clone(appErrors.ErrNotFound, "photo report not found")
	}
	if report.Status != models.PhotoReportDraft {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("photo report is %s", report.Status))
	}
	return nil
}

func invalidTransition(from, to models.TaskStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move task from %s to %s", from, to))
}
