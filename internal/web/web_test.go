package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opensource-finance/fraudguard/internal/apiclient"
	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/chart"
	"github.com/opensource-finance/fraudguard/internal/dashboard"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/obs"
	"github.com/opensource-finance/fraudguard/internal/repository"
	"github.com/opensource-finance/fraudguard/internal/rules"
	"github.com/opensource-finance/fraudguard/internal/session"
)

const csrfFormField = "gorilla.csrf.Token"

// fakeAPI mimics the remote scoring API.
type fakeAPI struct {
	mu          sync.Mutex
	history     []domain.HistoryRecord
	predictHits atomic.Int32
	rejectAll   atomic.Bool
	lastAuth    atomic.Value
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "Secret1!" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Incorrect username or password"}`)
			return
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   r.FormValue("username"),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte("test-signing-key"))
		if err != nil {
			t.Errorf("sign token: %v", err)
		}
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer"}`, signed)
	})

	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var form domain.RegistrationForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil || form.Username == "taken" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"detail":"Username already registered"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1}`)
	})

	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		f.predictHits.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		if f.rejectAll.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		var input domain.TransactionInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		isFraud := input.OnlineOrder && input.RatioToMedianPurchasePrice > 2

		f.mu.Lock()
		id := int64(len(f.history) + 1)
		f.history = append(f.history, domain.HistoryRecord{
			ID:                         id,
			DistanceFromHome:           input.DistanceFromHome,
			RatioToMedianPurchasePrice: input.RatioToMedianPurchasePrice,
			IsFraud:                    isFraud,
			ConfidenceScore:            0.9731,
			Reasons:                    []string{"High price ratio"},
			CreatedAt:                  domain.Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		})
		f.mu.Unlock()

		json.NewEncoder(w).Encode(domain.PredictionResult{
			ID:              id,
			IsFraud:         isFraud,
			ConfidenceScore: 0.9731,
			Reasons:         []string{"High price ratio"},
		})
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectAll.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.history)
	})

	return mux
}

type console struct {
	server  *httptest.Server
	api     *fakeAPI
	creds   *repository.CredentialStore
	session *session.Controller
	bus     *bus.ChannelBus
	client  *http.Client
}

func newConsole(t *testing.T) *console {
	t.Helper()

	api := &fakeAPI{}
	apiServer := httptest.NewServer(api.handler(t))
	t.Cleanup(apiServer.Close)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "console.db"),
	})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	creds := repository.NewCredentialStore(repo, domain.DefaultProfile)
	metrics := obs.NewMetrics()
	client := apiclient.New(apiclient.Options{
		BaseURL:  apiServer.URL,
		Timeout:  2 * time.Second,
		Tokens:   creds,
		Recorder: metrics,
	})

	eventBus := bus.NewChannelBus(16)
	t.Cleanup(func() { eventBus.Close() })
	emitter := bus.NewEmitter(eventBus, domain.DefaultProfile)

	guards, err := rules.NewDefaultEngine()
	if err != nil {
		t.Fatalf("guards: %v", err)
	}

	dash := dashboard.NewController(client, dashboard.Options{
		Guard:    guards,
		Events:   emitter,
		Observer: metrics,
	})
	sess := session.NewController(client, creds, emitter)
	sess.AddListener(dash)
	dash.SetSession(sess)

	srv, err := NewServer(domain.ServerConfig{CSRFKey: "test-csrf-secret"}, Deps{
		Session:    sess,
		Dashboard:  dash,
		Charts:     chart.NewRenderer(nil, domain.DefaultProfile, 0),
		Bus:        eventBus,
		Metrics:    metrics,
		Checks:     map[string]Pinger{"store": repo, "bus": eventBus},
		Profile:    domain.DefaultProfile,
		APIBaseURL: apiServer.URL,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ts.Close()
	})

	jar, _ := cookiejar.New(nil)
	return &console{
		server:  ts,
		api:     api,
		creds:   creds,
		session: sess,
		bus:     eventBus,
		client: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

var csrfMeta = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)">`)

// token loads a page and returns the CSRF token embedded in it.
func (c *console) token(t *testing.T, path string) string {
	t.Helper()
	resp, body := c.get(t, path)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	m := csrfMeta.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("GET %s: no csrf token in page", path)
	}
	return html.UnescapeString(m[1])
}

func (c *console) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.client.Get(c.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (c *console) post(t *testing.T, path, token string, form url.Values) (*http.Response, string) {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if token != "" {
		form.Set(csrfFormField, token)
	}
	resp, err := c.client.PostForm(c.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (c *console) login(t *testing.T) string {
	t.Helper()
	token := c.token(t, "/login")
	resp, body := c.post(t, "/login", token, url.Values{"username": {"alice"}, "password": {"Secret1!"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("login: status %d location %q: %s", resp.StatusCode, resp.Header.Get("Location"), body)
	}
	return c.token(t, "/")
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}

func TestHealthAndReady(t *testing.T) {
	c := newConsole(t)

	t.Run("Health", func(t *testing.T) {
		resp, body := c.get(t, "/health")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Status     string            `json:"status"`
			Version    string            `json:"version"`
			Components map[string]string `json:"components"`
		}
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Status != "healthy" || out.Version != "test" {
			t.Errorf("unexpected health %+v", out)
		}
		if out.Components["store"] != "ok" || out.Components["bus"] != "ok" {
			t.Errorf("unexpected components %v", out.Components)
		}
	})

	t.Run("DegradedWhenBusClosed", func(t *testing.T) {
		c := newConsole(t)
		c.bus.Close()
		_, body := c.get(t, "/health")
		if !strings.Contains(body, `"status":"degraded"`) {
			t.Errorf("expected degraded status, got %s", body)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		resp, _ := c.get(t, "/ready")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, body := c.get(t, "/metrics")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, "fraudguard_http_requests_total") {
			t.Error("expected request counter in exposition")
		}
	})
}

func TestUnauthenticatedAccess(t *testing.T) {
	c := newConsole(t)

	for _, path := range []string{"/", "/chart.png"} {
		resp, _ := c.get(t, path)
		assertRedirect(t, resp, "/login")
	}

	_, body := c.get(t, "/api/state")
	if !strings.Contains(body, `"mode":"unauthenticated"`) || strings.Contains(body, `"dashboard"`) {
		t.Errorf("unexpected state %s", body)
	}
}

func TestCSRFProtection(t *testing.T) {
	c := newConsole(t)
	c.token(t, "/login")

	resp, _ := c.post(t, "/login", "", url.Values{"username": {"alice"}, "password": {"Secret1!"}})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", resp.StatusCode)
	}
	if c.session.IsAuthenticated() {
		t.Error("session must not authenticate on a forged post")
	}
}

func TestLoginFailure(t *testing.T) {
	c := newConsole(t)
	token := c.token(t, "/login")

	resp, body := c.post(t, "/login", token, url.Values{"username": {"alice"}, "password": {"wrong"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Incorrect username or password") {
		t.Error("expected server detail in page")
	}
	if tok, _ := c.creds.Token(context.Background()); tok != "" {
		t.Error("no credential should be stored")
	}
}

func TestRegistration(t *testing.T) {
	c := newConsole(t)
	token := c.token(t, "/register")

	t.Run("PolicyEndpoint", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, c.server.URL+"/register/policy", strings.NewReader(`{"password":"abc"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", token)
		resp, err := c.client.Do(req)
		if err != nil {
			t.Fatalf("policy: %v", err)
		}
		defer resp.Body.Close()

		var out struct {
			Facets []session.Facet `json:"facets"`
			Valid  bool            `json:"all_valid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Valid || len(out.Facets) != 5 {
			t.Errorf("unexpected policy %+v", out)
		}
		if !out.Facets[2].Valid {
			t.Error("lowercase facet should hold for abc")
		}
	})

	t.Run("WeakPasswordRejected", func(t *testing.T) {
		resp, _ := c.post(t, "/register", token, url.Values{
			"username": {"bob"}, "email": {"bob@example.com"}, "password": {"weak"},
		})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d", resp.StatusCode)
		}
	})

	t.Run("ServerDetailShown", func(t *testing.T) {
		resp, body := c.post(t, "/register", token, url.Values{
			"username": {"taken"}, "email": {"t@example.com"}, "password": {"Secret1!"},
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, "Username already registered") {
			t.Error("expected server detail in page")
		}
	})

	t.Run("SuccessShowsNotice", func(t *testing.T) {
		resp, _ := c.post(t, "/register", token, url.Values{
			"username": {"bob"}, "email": {"bob@example.com"}, "password": {"Secret1!"},
		})
		assertRedirect(t, resp, "/login")
		if c.session.IsAuthenticated() {
			t.Error("registration must not authenticate")
		}

		_, body := c.get(t, "/login")
		if !strings.Contains(body, session.NoticeAccountCreated) {
			t.Error("expected account created notice on login page")
		}
	})
}

func TestPredictionFlow(t *testing.T) {
	c := newConsole(t)
	token := c.login(t)

	stored, err := c.creds.Token(context.Background())
	if err != nil || stored == "" {
		t.Fatalf("expected stored credential, got %q (%v)", stored, err)
	}

	resp, _ := c.post(t, "/predict", token, url.Values{
		"distance_from_home":             {"12.5"},
		"ratio_to_median_purchase_price": {"3.2"},
		"online_order":                   {"on"},
	})
	assertRedirect(t, resp, "/")

	if got := c.api.lastAuth.Load(); got != "Bearer "+stored {
		t.Errorf("expected bearer credential on /predict, got %v", got)
	}

	_, body := c.get(t, "/")
	for _, want := range []string{
		"Potential Fraud Detected",
		"97.31%",
		"#1",
		"12.5 km",
		"3.2x Median",
		"FRAUD",
		"97.3%",
		"2025-01-02 03:04:05",
		dashboard.LabelSubmit,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	t.Run("Chart", func(t *testing.T) {
		resp, body := c.get(t, "/chart.png")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("expected image/png, got %s", ct)
		}
		if !strings.HasPrefix(body, "\x89PNG") {
			t.Error("expected PNG signature")
		}
	})

	t.Run("State", func(t *testing.T) {
		_, body := c.get(t, "/api/state")
		var out stateResponse
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Session.Mode != domain.ModeAuthenticated || out.Session.Subject != "alice" {
			t.Errorf("unexpected session %+v", out.Session)
		}
		if out.Dashboard == nil || len(out.Dashboard.Rows) != 1 || out.Dashboard.Chart.Fraud != 1 {
			t.Errorf("unexpected dashboard %+v", out.Dashboard)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		resp, _ := c.post(t, "/logout", token, nil)
		assertRedirect(t, resp, "/login")

		if tok, _ := c.creds.Token(context.Background()); tok != "" {
			t.Error("credential should be cleared")
		}
		resp, _ = c.get(t, "/")
		assertRedirect(t, resp, "/login")
	})
}

func TestPredictValidation(t *testing.T) {
	c := newConsole(t)
	token := c.login(t)

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{
			name: "NegativeDistance",
			form: url.Values{"distance_from_home": {"-1"}, "ratio_to_median_purchase_price": {"1"}},
			want: "Distance from home must not be negative",
		},
		{
			name: "MissingRatio",
			form: url.Values{"distance_from_home": {"1"}},
			want: "ratio_to_median_purchase_price is required",
		},
		{
			name: "NotANumber",
			form: url.Values{"distance_from_home": {"far"}, "ratio_to_median_purchase_price": {"1"}},
			want: "distance_from_home must be a number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := c.post(t, "/predict", token, tt.form)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", resp.StatusCode)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("expected %q in page", tt.want)
			}
		})
	}

	if hits := c.api.predictHits.Load(); hits != 0 {
		t.Errorf("validation failures must not reach the API, got %d calls", hits)
	}
}

func TestRejectedCredentialLogsOut(t *testing.T) {
	c := newConsole(t)
	token := c.login(t)
	c.api.rejectAll.Store(true)

	resp, _ := c.post(t, "/predict", token, url.Values{
		"distance_from_home":             {"1"},
		"ratio_to_median_purchase_price": {"1"},
	})
	assertRedirect(t, resp, "/login")

	if c.session.IsAuthenticated() {
		t.Error("a 401 must end the session")
	}
	if tok, _ := c.creds.Token(context.Background()); tok != "" {
		t.Error("credential should be cleared")
	}
}

func TestEventStream(t *testing.T) {
	c := newConsole(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.server.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("expected stream preamble, got %q (%v)", line, err)
	}

	bus.NewEmitter(c.bus, domain.DefaultProfile).Emit(ctx, domain.TopicPredictionResolved, "")
	// other profiles are not relayed
	bus.NewEmitter(c.bus, "other").Emit(ctx, domain.TopicPredictionFailed, "")

	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}

	if lines[0] != "event: "+domain.TopicPredictionResolved {
		t.Errorf("unexpected event line %q", lines[0])
	}
	if !strings.Contains(lines[1], `"topic":"prediction.resolved"`) {
		t.Errorf("unexpected data line %q", lines[1])
	}
}
