package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine/auth"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/events"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/notify"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/repo"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
)

type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string) (domain.Role, error)
}

type MatrixLoader interface {
	LoadMatrix(ctx context.Context, role domain.Role) (permission.Matrix, error)
}

// Engine is the only path through which tickets, roles and matrices change.
// Every operation re-evaluates permissions for the calling user.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Roles    RoleResolver
	Matrices MatrixLoader
	Store    storage.Store
	Notifier notify.Dispatcher
	Policy   permission.Policy
	Logger   *slog.Logger
	Validate *validator.Validate
	Now      func() time.Time
}

// New wires an engine over db. Attachments and notifications are disabled
// until Store and Notifier are set.
func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	svc := auth.Service{Repo: r}
	policy := permission.DefaultPolicy()
	if cfg != nil {
		policy = cfg.EvaluatorPolicy()
	}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Roles:    svc,
		Matrices: svc,
		Store:    storage.Unconfigured{},
		Notifier: notify.Nop{},
		Policy:   policy,
		Logger:   slog.Default(),
		Validate: NewValidator(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// evaluator resolves the caller's role and matrix. Lookup failures deny;
// a missing matrix row is a configuration error and is returned as is.
func (e Engine) evaluator(ctx context.Context, actorID, action string) (permission.Evaluator, error) {
	if actorID == "" {
		return permission.Evaluator{}, auth.ForbiddenError{Action: action}
	}
	role, err := e.Roles.ResolveRole(ctx, actorID)
	if err != nil {
		e.logger().ErrorContext(ctx, "role lookup failed", slog.String("user_id", actorID), slog.String("action", action), slog.Any("error", err))
		return permission.Evaluator{}, auth.ForbiddenError{Action: action}
	}
	m, err := e.Matrices.LoadMatrix(ctx, role)
	if errors.Is(err, permission.ErrMatrixMissing) {
		return permission.Evaluator{}, err
	}
	if err != nil {
		e.logger().ErrorContext(ctx, "permission lookup failed", slog.String("role", string(role)), slog.String("action", action), slog.Any("error", err))
		return permission.Evaluator{}, auth.ForbiddenError{Action: action}
	}
	actor := domain.Actor{UserID: actorID, Role: role}
	return permission.NewEvaluator(actor, m, e.Policy), nil
}

// Whoami returns the caller's resolved role and matrix.
func (e Engine) Whoami(ctx context.Context, actorID string) (domain.Actor, permission.Matrix, error) {
	ev, err := e.evaluator(ctx, actorID, "read own permissions")
	if err != nil {
		return domain.Actor{}, permission.Matrix{}, err
	}
	return ev.Actor, ev.Matrix, nil
}

// ValidationError reports rejected input. Fields maps input names to problems.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

func invalid(field, problem string) ValidationError {
	return ValidationError{Message: "validation failed", Fields: map[string]string{field: problem}}
}

// NewValidator reports fields by their json names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func (e Engine) validate(in any) error {
	v := e.Validate
	if v == nil {
		v = NewValidator()
	}
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		problem := fe.Tag()
		if fe.Param() != "" {
			problem += "=" + fe.Param()
		}
		fields[ns] = problem
	}
	return ValidationError{Message: "validation failed", Fields: fields}
}

// normalizeWindow parses the work window and returns it in UTC RFC3339.
func normalizeWindow(start, end string) (string, string, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return "", "", invalid("work_start_date", "must be RFC3339")
	}
	en, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return "", "", invalid("work_end_date", "must be RFC3339")
	}
	if en.Before(s) {
		return "", "", invalid("work_end_date", "must not be before work_start_date")
	}
	return s.UTC().Format(time.RFC3339), en.UTC().Format(time.RFC3339), nil
}
