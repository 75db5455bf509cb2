package workspace

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/jwt"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

// Provisioner creates tenants.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
}

// Landlord serves registration and tenant administration.
type Landlord struct {
	provisioner Provisioner
	registry    tenant.Registry
	adminToken  string
	log         *slog.Logger
	opts        handlerOptions
}

// NewLandlord creates the landlord handlers. An empty adminToken disables
// the administrative API.
func NewLandlord(p Provisioner, registry tenant.Registry, adminToken string, log *slog.Logger, opts ...Option) *Landlord {
	if log == nil {
		log = slog.Default()
	}
	return &Landlord{provisioner: p, registry: registry, adminToken: adminToken, log: log, opts: newHandlerOptions(opts)}
}

func (l *Landlord) Register(r chi.Router) {
	r.With(l.opts.limit).Post("/registration", core.Wrap(l.register, core.BindJSON()))

	r.Route("/api/tenants", func(r chi.Router) {
		r.Use(l.requireAdmin)
		r.Get("/", core.Wrap(l.list, core.BindQuery()))
		r.Get("/{id}", core.Wrap(l.get, core.BindPath()))
		r.Patch("/{id}/status", core.Wrap(l.setStatus, core.BindPath(), core.BindJSON()))
		r.Delete("/{id}", core.Wrap(l.remove, core.BindPath()))
	})
}

func (l *Landlord) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.adminToken == "" {
			core.WriteError(w, r, ErrAdminAPIDisabled)
			return
		}
		token, err := jwt.BearerTokenExtractor(r)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(l.adminToken)) != 1 {
			core.WriteError(w, r, core.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type registrationResponse struct {
	TenantID uuid.UUID         `json:"tenant_id"`
	Slug     string            `json:"slug"`
	Database string            `json:"database"`
	Status   tenant.Status     `json:"status"`
	Owner    provision.Receipt `json:"owner"`
}

func (l *Landlord) register(ctx context.Context, req provision.Request) core.Response {
	res, err := l.provisioner.Provision(ctx, req)
	if err != nil {
		return l.fail(ctx, err)
	}
	return core.JSON(http.StatusCreated, registrationResponse{
		TenantID: res.Tenant.ID,
		Slug:     res.Tenant.Slug,
		Database: res.Tenant.Database,
		Status:   res.Tenant.Status,
		Owner:    res.Owner,
	})
}

type listRequest struct {
	Status         string `query:"status" validate:"omitempty,oneof=pending active suspended cancelled"`
	IncludeDeleted bool   `query:"include_deleted"`
}

type listResponse struct {
	Tenants []*tenant.Tenant `json:"tenants"`
	Total   int              `json:"total"`
}

func (l *Landlord) list(ctx context.Context, req listRequest) core.Response {
	ts, err := l.registry.List(ctx, tenant.ListFilter{
		Status:         tenant.Status(strings.ToLower(req.Status)),
		IncludeDeleted: req.IncludeDeleted,
	})
	if err != nil {
		return l.fail(ctx, err)
	}
	return core.JSON(http.StatusOK, listResponse{Tenants: ts, Total: len(ts)})
}

type idRequest struct {
	ID string `path:"id" json:"-" validate:"required,uuid"`
}

func (l *Landlord) get(ctx context.Context, req idRequest) core.Response {
	t, err := l.registry.FindByID(ctx, uuid.MustParse(req.ID))
	if err != nil {
		return l.fail(ctx, err)
	}
	return core.JSON(http.StatusOK, t)
}

type statusRequest struct {
	ID     string `path:"id" json:"-" validate:"required,uuid"`
	Status string `json:"status" validate:"required,oneof=pending active suspended cancelled"`
}

func (l *Landlord) setStatus(ctx context.Context, req statusRequest) core.Response {
	status, err := tenant.ParseStatus(req.Status)
	if err != nil {
		return l.fail(ctx, err)
	}
	t, err := l.registry.UpdateFields(ctx, uuid.MustParse(req.ID), tenant.StatusPatch(status))
	if err != nil {
		return l.fail(ctx, err)
	}
	l.log.InfoContext(ctx, "tenant status changed", logger.TenantID(t.ID), logger.TenantSlug(t.Slug), "status", t.Status)
	return core.JSON(http.StatusOK, t)
}

func (l *Landlord) remove(ctx context.Context, req idRequest) core.Response {
	if err := l.registry.SoftDelete(ctx, uuid.MustParse(req.ID)); err != nil {
		return l.fail(ctx, err)
	}
	return core.NoContent()
}

func (l *Landlord) fail(ctx context.Context, err error) core.Response {
	return failure(ctx, l.log, err)
}

// failure renders err mapped for clients. Mapped 5xx errors no longer carry
// their cause, so it is logged here; unmapped ones are logged by core.
func failure(ctx context.Context, log *slog.Logger, err error) core.Response {
	mapped := httpError(err)
	var he core.HTTPError
	if errors.As(mapped, &he) && he.Code >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request failed", logger.Error(err))
	}
	return core.JSONError(mapped)
}
