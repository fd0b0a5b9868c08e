// Package bridge interprets assistant-issued task actions, resolves fuzzy
// title references against the mirrored task list, and invokes the CRUD
// layer. It is the last line of defense: every failure becomes a structured
// Result, nothing escapes to the transport.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"todovoice/internal/todo"
)

// CRUD is the subset of the REST client the bridge drives.
type CRUD interface {
	Todos(ctx context.Context) ([]todo.Task, error)
	Create(ctx context.Context, req todo.CreateRequest) (todo.Task, error)
	Update(ctx context.Context, id string, req todo.UpdateRequest) (todo.Task, error)
	Delete(ctx context.Context, id string) error
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is returned synchronously for each action request.
type Result struct {
	Status  string
	Message string
}

func success(format string, args ...any) Result {
	return Result{Status: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Request is one decoded assistant action.
type Request struct {
	Name        string
	Title       string
	Description string
	Priority    string
	DueAt       string
	Search      string
}

// Bridge executes actions against the CRUD layer using the mirror for fuzzy
// resolution. The mirror stays read-only here; the session controller is its
// single writer.
type Bridge struct {
	crud   CRUD
	mirror *todo.Mirror
	now    func() time.Time
}

func New(crud CRUD, mirror *todo.Mirror) *Bridge {
	return &Bridge{crud: crud, mirror: mirror, now: time.Now}
}

// Execute runs one action and never returns an error: failed CRUD calls and
// unresolvable references come back as error Results.
func (b *Bridge) Execute(ctx context.Context, req Request) Result {
	switch strings.ToLower(strings.TrimSpace(req.Name)) {
	case "list":
		return b.list()
	case "create":
		return b.create(ctx, req)
	case "update":
		return b.update(ctx, req)
	case "delete":
		return b.delete(ctx, req)
	default:
		return failure("unknown action %q", req.Name)
	}
}

func (b *Bridge) list() Result {
	tasks := b.mirror.Snapshot()
	if len(tasks) == 0 {
		return success("The task list is empty.")
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		line := fmt.Sprintf("%s (priority %s, due %s)", t.Title, t.Priority, t.DueAt.Format("Mon Jan 2 15:04"))
		if strings.TrimSpace(t.Description) != "" {
			line += ": " + t.Description
		}
		lines = append(lines, line)
	}
	return success("%d tasks: %s", len(tasks), strings.Join(lines, "; "))
}

func (b *Bridge) create(ctx context.Context, req Request) Result {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return failure("create requires a title")
	}

	due := b.now().Add(24 * time.Hour)
	if strings.TrimSpace(req.DueAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueAt)
		if err != nil {
			return failure("invalid due date %q", req.DueAt)
		}
		due = parsed
	}

	_, err := b.crud.Create(ctx, todo.CreateRequest{
		Title:       title,
		Description: req.Description,
		Priority:    todo.NormalizePriority(req.Priority),
		DueAt:       due,
	})
	if err != nil {
		return failure("could not create task: %v", err)
	}
	return success("Created task %q.", title)
}

func (b *Bridge) update(ctx context.Context, req Request) Result {
	match, res := b.resolve(req.Search)
	if res != nil {
		return *res
	}

	merged := todo.UpdateRequest{
		Title:       match.Title,
		Description: match.Description,
		Priority:    match.Priority,
		DueAt:       match.DueAt,
	}
	if strings.TrimSpace(req.Title) != "" {
		merged.Title = strings.TrimSpace(req.Title)
	}
	if strings.TrimSpace(req.Description) != "" {
		merged.Description = req.Description
	}
	if strings.TrimSpace(req.Priority) != "" {
		merged.Priority = todo.NormalizePriority(req.Priority)
	}
	if strings.TrimSpace(req.DueAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueAt)
		if err != nil {
			return failure("invalid due date %q", req.DueAt)
		}
		merged.DueAt = parsed
	}

	if _, err := b.crud.Update(ctx, match.ID, merged); err != nil {
		return failure("could not update task %q: %v", match.Title, err)
	}
	return success("Updated task %q.", merged.Title)
}

func (b *Bridge) delete(ctx context.Context, req Request) Result {
	match, res := b.resolve(req.Search)
	if res != nil {
		return *res
	}
	if err := b.crud.Delete(ctx, match.ID); err != nil {
		return failure("could not delete task %q: %v", match.Title, err)
	}
	return success("Deleted task %q.", match.Title)
}

// resolve applies the fuzzy rule: case-insensitive substring match against
// mirrored titles, with exactly one hit required.
func (b *Bridge) resolve(search string) (todo.Task, *Result) {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		res := failure("a search term is required")
		return todo.Task{}, &res
	}

	var matches []todo.Task
	for _, t := range b.mirror.Snapshot() {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		res := failure("no task found matching %q", search)
		return todo.Task{}, &res
	case 1:
		return matches[0], nil
	default:
		titles := make([]string, len(matches))
		for i, t := range matches {
			titles[i] = t.Title
		}
		sort.Strings(titles)
		res := failure("multiple tasks match %q: %s. Please be more specific.", search, strings.Join(titles, ", "))
		return todo.Task{}, &res
	}
}
