package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/csrf"
	"github.com/opensource-finance/fraudguard/internal/chart"
	"github.com/opensource-finance/fraudguard/internal/dashboard"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Messages shown on the dashboard for rejected submissions.
const (
	MessageInFlight = "A prediction is already being analyzed."
)

// Handler holds dependencies for console handlers.
type Handler struct {
	session   *session.Controller
	dashboard *dashboard.Controller
	charts    *chart.Renderer
	bus       domain.EventBus
	checks    map[string]Pinger
	profile   string
	apiURL    string
	version   string
	pages     map[string]*template.Template

	streamsOnce sync.Once
	streamsDone chan struct{}
}

// NewHandler parses the embedded templates and creates a handler.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Session == nil || deps.Dashboard == nil {
		return nil, fmt.Errorf("session and dashboard controllers are required")
	}
	if deps.Charts == nil {
		deps.Charts = chart.NewRenderer(nil, deps.Profile, 0)
	}
	if deps.Profile == "" {
		deps.Profile = domain.DefaultProfile
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	return &Handler{
		session:     deps.Session,
		dashboard:   deps.Dashboard,
		charts:      deps.Charts,
		bus:         deps.Bus,
		checks:      deps.Checks,
		profile:     deps.Profile,
		apiURL:      deps.APIBaseURL,
		version:     deps.Version,
		pages:       pages,
		streamsDone: make(chan struct{}),
	}, nil
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"auth.html", "dashboard.html"} {
		tpl, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tpl
	}
	return pages, nil
}

// authPage is the data for auth.html.
type authPage struct {
	Session   session.State
	Register  bool
	Facets    []session.Facet
	CSRFField template.HTML
	CSRFToken string
	APIURL    string
	Version   string
}

// dashboardPage is the data for dashboard.html.
type dashboardPage struct {
	Session   session.State
	View      dashboard.View
	FormError string
	CSRFField template.HTML
	CSRFToken string
	APIURL    string
	Version   string
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	tpl, ok := h.pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		slog.Error("failed to render page", "page", page, "error", err)
	}
}

func (h *Handler) renderAuth(w http.ResponseWriter, r *http.Request, status int) {
	state := h.session.State()
	h.render(w, status, "auth.html", authPage{
		Session:   state,
		Register:  state.View == domain.ViewRegister,
		Facets:    session.EvaluatePassword("").Facets(),
		CSRFField: csrf.TemplateField(r),
		CSRFToken: csrf.Token(r),
		APIURL:    h.apiURL,
		Version:   h.version,
	})
}

func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, formError string) {
	h.render(w, status, "dashboard.html", dashboardPage{
		Session:   h.session.State(),
		View:      h.dashboard.View(),
		FormError: formError,
		CSRFField: csrf.TemplateField(r),
		CSRFToken: csrf.Token(r),
		APIURL:    h.apiURL,
		Version:   h.version,
	})
}

// RequireSession redirects unauthenticated requests to the login page.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.session.IsAuthenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginPage handles GET /login.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.session.IsAuthenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if h.session.State().View != domain.ViewLogin {
		h.session.ShowLogin()
	}
	h.renderAuth(w, r, http.StatusOK)
}

// RegisterPage handles GET /register.
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if h.session.IsAuthenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if h.session.State().View != domain.ViewRegister {
		h.session.ShowRegister()
	}
	h.renderAuth(w, r, http.StatusOK)
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err := h.session.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		h.renderAuth(w, r, statusFor(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := domain.RegistrationForm{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}
	if err := h.session.Register(r.Context(), form); err != nil {
		h.renderAuth(w, r, statusFor(err))
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type policyRequest struct {
	Password string `json:"password"`
}

type policyResponse struct {
	Facets   []session.Facet `json:"facets"`
	AllValid bool            `json:"all_valid"`
}

// PasswordPolicy handles POST /register/policy. The registration form
// calls it on every keystroke.
func (h *Handler) PasswordPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	policy := session.EvaluatePassword(req.Password)
	writeJSON(w, http.StatusOK, policyResponse{Facets: policy.Facets(), AllValid: policy.AllValid()})
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		slog.Error("logout failed to clear the stored credential", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Dashboard handles GET /.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, "")
}

// Predict handles POST /predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	input, err := parseTransactionForm(r)
	if err == nil {
		_, err = h.dashboard.Submit(r.Context(), input)
	}

	switch domain.Classify(err) {
	case domain.KindNone:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case domain.KindValidationRejected:
		h.renderDashboard(w, r, http.StatusUnprocessableEntity, validationMessage(err))
	case domain.KindInFlight:
		h.renderDashboard(w, r, http.StatusConflict, MessageInFlight)
	case domain.KindAuthRejected:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	default:
		// the dashboard carries the alert
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// RefreshHistory handles POST /history/refresh.
func (h *Handler) RefreshHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.RefreshHistory(r.Context()); domain.IsAuthRejected(err) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DismissAlert handles POST /alert/dismiss.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.dashboard.DismissAlert()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ChartPNG handles GET /chart.png.
func (h *Handler) ChartPNG(w http.ResponseWriter, r *http.Request) {
	counts := h.dashboard.Chart()
	img, err := h.charts.PNG(r.Context(), counts.Legit, counts.Fraud)
	if err != nil {
		slog.Error("failed to render chart", "error", err, "request_id", GetRequestID(r.Context()))
		http.Error(w, "chart unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	_, _ = w.Write(img)
}

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	Session   session.State   `json:"session"`
	Dashboard *dashboard.View `json:"dashboard,omitempty"`
}

// State handles GET /api/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{Session: h.session.State()}
	if resp.Session.Mode == domain.ModeAuthenticated {
		view := h.dashboard.View()
		resp.Dashboard = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check.Ping(r.Context()); err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CSRFFailure renders rejected form posts.
func (h *Handler) CSRFFailure(w http.ResponseWriter, r *http.Request) {
	slog.Warn("csrf validation failed",
		"path", r.URL.Path,
		"reason", csrf.FailureReason(r),
		"request_id", GetRequestID(r.Context()),
	)
	http.Error(w, "Forbidden - the form expired, reload the page and try again", http.StatusForbidden)
}

func (h *Handler) closeStreams() {
	h.streamsOnce.Do(func() { close(h.streamsDone) })
}

func parseTransactionForm(r *http.Request) (domain.TransactionInput, error) {
	if err := r.ParseForm(); err != nil {
		return domain.TransactionInput{}, fmt.Errorf("%w: invalid form", domain.ErrValidationRejected)
	}

	var input domain.TransactionInput
	var err error
	if input.DistanceFromHome, err = formFloat(r, "distance_from_home", true); err != nil {
		return input, err
	}
	if input.DistanceFromLastTransaction, err = formFloat(r, "distance_from_last_transaction", false); err != nil {
		return input, err
	}
	if input.RatioToMedianPurchasePrice, err = formFloat(r, "ratio_to_median_purchase_price", true); err != nil {
		return input, err
	}
	input.RepeatRetailer = formBool(r, "repeat_retailer")
	input.UsedChip = formBool(r, "used_chip")
	input.UsedPinNumber = formBool(r, "used_pin_number")
	input.OnlineOrder = formBool(r, "online_order")
	return input, nil
}

func formFloat(r *http.Request, name string, required bool) (float64, error) {
	raw := strings.TrimSpace(r.PostForm.Get(name))
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", domain.ErrValidationRejected, name)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrValidationRejected, name)
	}
	return v, nil
}

func formBool(r *http.Request, name string) bool {
	switch r.PostForm.Get(name) {
	case "on", "true", "1":
		return true
	}
	return false
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidationRejected.Error()+": ")
}

func statusFor(err error) int {
	switch domain.Classify(err) {
	case domain.KindValidationRejected:
		return http.StatusUnprocessableEntity
	case domain.KindAuthRejected:
		return http.StatusUnauthorized
	case domain.KindNetworkUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
