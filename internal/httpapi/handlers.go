package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
	"customervoice.app/internal/feedback"
	"customervoice.app/internal/obs"
	"customervoice.app/internal/stream"
)

const serviceName = "customervoice-api"

// Pinger is implemented by the database handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe reports readiness by pinging the database. A nil DB is always
// ready.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.DB.Ping(ctx)
}

// Deps are the services the HTTP layer delegates to.
type Deps struct {
	Resolver   auth.Resolver
	Evaluator  *auth.Evaluator
	Members    *auth.MemberService
	Policies   *auth.PolicyService
	Workspaces auth.WorkspaceStore
	Feedback   *feedback.Service
	Audit      *audit.Emitter
	Stream     *stream.Hub[audit.Event]
	Ready      ReadyProbe
}

// Options tune transport behaviour. Zero values keep the defaults.
type Options struct {
	Version        string
	RateBurst      int
	RatePerSec     int
	MaxBodyBytes   int64
	AllowedOrigins []string
	TrustedProxies TrustedProxies
}

// API is the HTTP layer.
type API struct {
	router *mux.Router

	resolver   auth.Resolver
	evaluator  *auth.Evaluator
	members    *auth.MemberService
	policies   *auth.PolicyService
	workspaces auth.WorkspaceStore
	feedback   *feedback.Service
	audit      *audit.Emitter
	stream     *stream.Hub[audit.Event]
	ready      ReadyProbe

	version        string
	rateBurst      int
	ratePerSec     int
	maxBodyBytes   int64
	allowedOrigins []string
	trustedProxies TrustedProxies
}

func New(deps Deps, opts Options) *API {
	a := &API{
		router:         mux.NewRouter(),
		resolver:       deps.Resolver,
		evaluator:      deps.Evaluator,
		members:        deps.Members,
		policies:       deps.Policies,
		workspaces:     deps.Workspaces,
		feedback:       deps.Feedback,
		audit:          deps.Audit,
		stream:         deps.Stream,
		ready:          deps.Ready,
		version:        opts.Version,
		rateBurst:      opts.RateBurst,
		ratePerSec:     opts.RatePerSec,
		maxBodyBytes:   opts.MaxBodyBytes,
		allowedOrigins: opts.AllowedOrigins,
		trustedProxies: opts.TrustedProxies,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 60
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 30
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", a.Health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	ws := r.PathPrefix("/api/v1/workspaces/{workspaceId}").Subrouter()
	ws.Use(a.ResolveActor, EnforceWorkspaceScope)

	a.handle(ws, http.MethodGet, "/members", auth.PermMembershipRead, a.listMembers)
	a.handle(ws, http.MethodPost, "/members/invite", auth.PermMembershipWrite, a.inviteMember)
	a.handle(ws, http.MethodPatch, "/members/{userId}/role", auth.PermMembershipWrite, a.updateMemberRole)
	a.handle(ws, http.MethodDelete, "/members/{userId}", auth.PermMembershipWrite, a.deactivateMember)

	a.handle(ws, http.MethodGet, "/audit-events", auth.PermAuditRead, a.listAuditEvents)
	a.handle(ws, http.MethodGet, "/audit-events/stream", auth.PermAuditRead, a.streamAuditEvents)

	a.handle(ws, http.MethodGet, "/policies", auth.PermPolicyRead, a.describePolicy)
	a.handle(ws, http.MethodPut, "/policies", auth.PermPolicyWrite, a.setOverride)
	a.handle(ws, http.MethodDelete, "/policies/{role}/{permission}", auth.PermPolicyWrite, a.deleteOverride)

	a.handle(ws, http.MethodGet, "/boards", auth.PermBoardRead, a.listBoards)
	a.handle(ws, http.MethodPost, "/boards", auth.PermBoardWrite, a.createBoard)
	a.handle(ws, http.MethodGet, "/boards/{boardId}", auth.PermBoardRead, a.getBoard)
	a.handle(ws, http.MethodPatch, "/boards/{boardId}", auth.PermBoardWrite, a.updateBoard)

	a.handle(ws, http.MethodGet, "/boards/{boardId}/ideas", auth.PermIdeaRead, a.listIdeas)
	a.handle(ws, http.MethodPost, "/boards/{boardId}/ideas", auth.PermIdeaWrite, a.createIdea)
	a.handle(ws, http.MethodGet, "/boards/{boardId}/ideas/{ideaId}", auth.PermIdeaRead, a.getIdea)
	a.handle(ws, http.MethodPatch, "/boards/{boardId}/ideas/{ideaId}/status", auth.PermIdeaStatusWrite, a.updateIdeaStatus)
	a.handle(ws, http.MethodPost, "/boards/{boardId}/ideas/{ideaId}/votes", auth.PermVoteWrite, a.vote)
	a.handle(ws, http.MethodDelete, "/boards/{boardId}/ideas/{ideaId}/votes", auth.PermVoteWrite, a.unvote)
	a.handle(ws, http.MethodGet, "/boards/{boardId}/ideas/{ideaId}/comments", auth.PermIdeaRead, a.listComments)
	a.handle(ws, http.MethodPost, "/boards/{boardId}/ideas/{ideaId}/comments", auth.PermCommentWrite, a.createComment)
}

func (a *API) handle(r *mux.Router, method, path string, perm auth.Permission, h http.HandlerFunc) {
	r.Handle(path, a.RequirePermission(perm)(h)).Methods(method)
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(a.allowedOrigins)(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = LoggingJSON(h)
	h = ClientIP(a.trustedProxies)(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Health pings the database and fails loudly when it is unreachable.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"service":      "api",
		"dependencies": map[string]string{"postgres": "ok"},
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// emit records an audit event after a committed mutation. A failed write is
// logged and never changes the response.
func (a *API) emit(r *http.Request, action string, metadata map[string]any) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Emit(r.Context(), action, metadata); err != nil {
		obs.Logger().WithFields(logrus.Fields{
			"request_id":   requestID(r),
			"event":        action,
			"workspace_id": pathWorkspace(r),
		}).WithError(err).Error("audit_emit_failed")
	}
}
