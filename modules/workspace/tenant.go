package workspace

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/auth"
	"github.com/dmitrymomot/crmkit/svc/members"
)

// UserReader loads members of the bound tenant.
type UserReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*members.User, error)
}

// Tenant serves the routes of a bound tenant.
type Tenant struct {
	auth     *auth.Service
	registry tenant.Registry
	users    UserReader
	policy   *rbac.Policy
	log      *slog.Logger
	opts     handlerOptions
}

func NewTenant(authSvc *auth.Service, registry tenant.Registry, users UserReader, policy *rbac.Policy, log *slog.Logger, opts ...Option) *Tenant {
	if log == nil {
		log = slog.Default()
	}
	return &Tenant{auth: authSvc, registry: registry, users: users, policy: policy, log: log, opts: newHandlerOptions(opts)}
}

func (h *Tenant) Register(r chi.Router) {
	r.With(h.opts.limit).Post("/auth/login", core.Wrap(h.login, core.BindJSON()))

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate())

		r.Get("/api/me", core.Wrap(h.me))
		r.Get("/api/tenant", core.Wrap(h.profile))
		r.With(auth.RequirePermission(h.policy, rbac.SettingsUpdate)).
			Patch("/api/tenant", core.Wrap(h.update, core.BindJSON()))
		r.With(auth.RequirePermission(h.policy, rbac.SettingsUpdate)).
			Put("/api/tenant/details", core.Wrap(h.putDetails, core.BindJSON()))
		r.With(auth.RequirePermission(h.policy, rbac.RolesRead)).
			Get("/api/roles", core.Wrap(h.roles))
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginResponse struct {
	auth.Token
	User *members.User `json:"user"`
}

func (h *Tenant) login(ctx context.Context, req loginRequest) core.Response {
	token, user, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return failure(ctx, h.log, err)
	}
	return core.JSON(http.StatusOK, loginResponse{Token: token, User: user})
}

type meResponse struct {
	User   *members.User `json:"user"`
	Tenant tenantSummary `json:"tenant"`
}

type tenantSummary struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}

func (h *Tenant) me(ctx context.Context, _ core.Empty) core.Response {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}
	user, err := h.users.FindByID(ctx, p.UserID)
	if errors.Is(err, members.ErrUserNotFound) {
		// The token outlived its user.
		return core.JSONError(core.ErrUnauthorized)
	}
	if err != nil {
		return failure(ctx, h.log, err)
	}
	t := tenant.MustFromContext(ctx)
	return core.JSON(http.StatusOK, meResponse{
		User:   user,
		Tenant: tenantSummary{ID: t.ID, Slug: t.Slug, Name: t.Name},
	})
}

type profileResponse struct {
	*tenant.Tenant
	Details *tenant.Details `json:"details"`
}

func (h *Tenant) profile(ctx context.Context, _ core.Empty) core.Response {
	t := tenant.MustFromContext(ctx)
	d, err := h.registry.Details(ctx, t.ID)
	if err != nil {
		return failure(ctx, h.log, err)
	}
	return core.JSON(http.StatusOK, profileResponse{Tenant: t, Details: d})
}

type updateRequest struct {
	Name    *string   `json:"name" validate:"omitempty,min=1,max=255"`
	Email   *string   `json:"email" validate:"omitempty,email"`
	Phone   *string   `json:"phone" validate:"omitempty,max=32"`
	Domain  *string   `json:"domain" validate:"omitempty,max=253"`
	Modules *[]string `json:"modules" validate:"omitempty,dive,required,max=64"`
}

func (h *Tenant) update(ctx context.Context, req updateRequest) core.Response {
	patch := tenant.Patch{Name: req.Name, Email: req.Email, Phone: req.Phone, Modules: req.Modules}
	if req.Domain != nil {
		d := strings.ToLower(strings.TrimSpace(*req.Domain))
		patch.Domain = &d
	}
	if patch.IsEmpty() {
		return core.JSONError(core.ErrBadRequest)
	}
	t, err := h.registry.UpdateFields(ctx, tenant.MustFromContext(ctx).ID, patch)
	if err != nil {
		return failure(ctx, h.log, err)
	}
	return core.JSON(http.StatusOK, t)
}

type detailsRequest struct {
	LogoURL     string            `json:"logo_url" validate:"omitempty,url,max=2048"`
	Website     string            `json:"website" validate:"omitempty,url,max=2048"`
	Industry    string            `json:"industry" validate:"omitempty,max=128"`
	Description string            `json:"description" validate:"omitempty,max=4000"`
	Address     string            `json:"address" validate:"omitempty,max=512"`
	City        string            `json:"city" validate:"omitempty,max=128"`
	Country     string            `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	TaxID       string            `json:"tax_id" validate:"omitempty,max=64"`
	Currency    string            `json:"currency" validate:"omitempty,iso4217"`
	Social      map[string]string `json:"social" validate:"omitempty,max=16,dive,keys,min=1,max=32,endkeys,url"`
}

func (h *Tenant) putDetails(ctx context.Context, req detailsRequest) core.Response {
	d, err := h.registry.UpsertDetails(ctx, tenant.MustFromContext(ctx).ID, tenant.Details{
		LogoURL:     req.LogoURL,
		Website:     req.Website,
		Industry:    req.Industry,
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		Country:     req.Country,
		TaxID:       req.TaxID,
		Currency:    req.Currency,
		Social:      req.Social,
	})
	if err != nil {
		return failure(ctx, h.log, err)
	}
	return core.JSON(http.StatusOK, d)
}

type roleView struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Inherits    []string `json:"inherits,omitempty"`
	Permissions []string `json:"permissions"`
}

func (h *Tenant) roles(_ context.Context, _ core.Empty) core.Response {
	names := h.policy.Roles()
	out := make([]roleView, 0, len(names))
	for _, name := range names {
		role, _ := h.policy.Role(name)
		out = append(out, roleView{
			Name:        name,
			Description: role.Description,
			Inherits:    role.Inherits,
			Permissions: h.policy.Permissions(name),
		})
	}
	return core.JSON(http.StatusOK, map[string]any{"roles": out})
}
