package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/resilience"
	"github.com/sells-group/dailyform/pkg/toodledo"
)

// To-do fact keys and placeholder.
const (
	KeyTodo      = "todo"
	KeyTodoCount = "todo_count"
	DefaultTodo  = "No todo"
)

// ErrNoAccount is returned when the form's user does not own the
// configured Toodledo account.
var ErrNoAccount = eris.New("todo: no toodledo account for user")

// Todo fetches the task titles of the form's account. The client is bound to
// a single Toodledo account.
type Todo struct {
	client toodledo.Client
	user   UserResolver
	guard  *resilience.Guard
	owner  string
}

// TodoOption configures a Todo.
type TodoOption func(*Todo)

// WithAccountOwner names the user the client's account belongs to. Forms
// resolving to any other user get no tasks instead of the owner's.
func WithAccountOwner(name string) TodoOption {
	return func(t *Todo) { t.owner = name }
}

// NewTodo creates the to-do capability. user may be nil, in which case the
// username must be set on the form before prepare.
func NewTodo(client toodledo.Client, user UserResolver, guard *resilience.Guard, opts ...TodoOption) *Todo {
	t := &Todo{client: client, user: user, guard: guard}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Todo) Name() string         { return KeyTodo }
func (t *Todo) Default() string      { return DefaultTodo }
func (t *Todo) Prerequisite() string { return KeyUsername }

// ResolvePrerequisite looks the account name up for the form id.
func (t *Todo) ResolvePrerequisite(ctx context.Context, f *form.Form) (any, bool) {
	if t.user == nil {
		return nil, false
	}
	name, ok := t.user.Username(ctx, f.ID())
	if !ok {
		return nil, false
	}
	return name, true
}

// Fetch returns the titles of the account's tasks. Records without a title
// are dropped.
func (t *Todo) Fetch(ctx context.Context, f *form.Form) (any, error) {
	user, ok := factString(f.Fact(KeyUsername))
	if !ok {
		return nil, eris.New("todo: username fact is missing")
	}
	if t.owner != "" && !strings.EqualFold(user, t.owner) {
		return nil, eris.Wrapf(ErrNoAccount, "%s (account belongs to %s)", user, t.owner)
	}

	tasks, err := resilience.Call(ctx, t.guard, "toodledo", t.client.Tasks)
	if err != nil {
		return nil, eris.Wrapf(err, "todo: tasks for %s", user)
	}

	titles := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.HasTitle() {
			titles = append(titles, *task.Title)
		}
	}
	zap.L().Debug("todo: fetched tasks",
		zap.String("username", user),
		zap.Int("tasks", len(tasks)),
		zap.Int("titled", len(titles)),
	)
	return titles, nil
}

// Analyze counts the titled tasks.
func (t *Todo) Analyze(f *form.Form) map[string]any {
	titles, ok := titlesFact(f)
	if !ok {
		return nil
	}
	return map[string]any{KeyTodoCount: len(titles)}
}

// FormatOne joins the titles with newlines. An empty list shows the default.
func (t *Todo) FormatOne(f *form.Form) (string, bool) {
	titles, ok := titlesFact(f)
	if !ok || len(titles) == 0 {
		return "", false
	}
	return strings.Join(titles, "\n"), true
}

func titlesFact(f *form.Form) ([]string, bool) {
	v, ok := f.Fact(KeyTodo)
	if !ok {
		return nil, false
	}
	return form.As[[]string](v)
}
