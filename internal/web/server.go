package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"moyun-danqing/internal/creation"
	"moyun-danqing/internal/imaging"
	"moyun-danqing/internal/session"
	"moyun-danqing/internal/style"
)

//go:embed static/*
var staticFS embed.FS

const (
	cookieName = "moyun"
	sessionKey = "sid"

	maxBodyBytes = 64 << 10
)

type Options struct {
	Pipeline       *creation.Pipeline
	Sessions       *session.Store
	Secret         []byte
	SecureCookie   bool
	CookieMaxAge   time.Duration
	HistoryDisplay int
	Logger         *slog.Logger
}

type Server struct {
	pipeline       *creation.Pipeline
	sessions       *session.Store
	cookies        *sessions.CookieStore
	historyDisplay int
	logger         *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("cookie secret is required")
	}

	historyDisplay := opts.HistoryDisplay
	if historyDisplay < 1 {
		historyDisplay = 6
	}

	maxAge := opts.CookieMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cookies := sessions.NewCookieStore(opts.Secret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		pipeline:       opts.Pipeline,
		sessions:       opts.Sessions,
		cookies:        cookies,
		historyDisplay: historyDisplay,
		logger:         logger,
	}, nil
}

func (s *Server) Routes() (http.Handler, error) {
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("POST /api/creations", s.handleCreate)
	mux.HandleFunc("GET /api/creations/{id}/image", s.handleImage)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.Handle("/", http.FileServer(http.FS(staticSub)))

	return withLogging(mux, s.logger), nil
}

type apiError struct {
	Error string `json:"error"`
}

type styleJSON struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

type createRequest struct {
	Poem  string `json:"poem"`
	Style string `json:"style"`
}

type creationJSON struct {
	ID           string   `json:"id"`
	Poem         string   `json:"poem"`
	Caption      string   `json:"caption"`
	Style        string   `json:"style"`
	StyleLabel   string   `json:"style_label"`
	Keywords     []string `json:"keywords,omitempty"`
	Fingerprint  string   `json:"fingerprint"`
	CreatedAt    string   `json:"created_at"`
	ImageURL     string   `json:"image_url"`
	MountedURL   string   `json:"mounted_url"`
	DownloadURL  string   `json:"download_url"`
	DownloadName string   `json:"download_name"`
}

type outcomeJSON struct {
	State     creation.State `json:"state"`
	Level     creation.Level `json:"level"`
	Message   string         `json:"message"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Creation  *creationJSON  `json:"creation,omitempty"`
}

type historyJSON struct {
	Total   int            `json:"total"`
	Entries []creationJSON `json:"entries"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	profiles := style.All()
	out := make([]styleJSON, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, styleJSON{Key: string(p.Style), Label: p.Label, Hint: p.Hint})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "session unavailable"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body"})
		return
	}

	st := sess.Style()
	if strings.TrimSpace(req.Style) != "" {
		parsed, err := style.Parse(req.Style)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
			return
		}
		st = parsed
		sess.SetStyle(st)
	}

	if !sess.TryBegin() {
		writeJSON(w, http.StatusConflict, apiError{Error: "正在研磨丹青，请稍候"})
		return
	}
	defer sess.End()

	out := s.pipeline.Create(r.Context(), sess, req.Poem, st)
	if out.State == creation.StateFailed {
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(out.Err)
		}
	}

	resp := outcomeJSON{
		State:     out.State,
		Level:     out.Level,
		Message:   out.Message,
		ElapsedMS: out.Elapsed.Milliseconds(),
	}
	if out.Creation != nil {
		c := toCreationJSON(out.Creation)
		resp.Creation = &c
	}

	writeJSON(w, statusFor(out.State), resp)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "session unavailable"})
		return
	}

	c, ok := sess.Find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "creation not found"})
		return
	}

	q := r.URL.Query()
	data := c.Image
	if parseBool(q.Get("mounted")) {
		data, err = imaging.Mount(c.Image)
	} else if parseBool(q.Get("download")) {
		data, err = imaging.EnsurePNG(c.Image)
	}
	if err != nil {
		s.logger.Error("image render failed", "id", c.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "image render failed"})
		return
	}

	if parseBool(q.Get("download")) {
		w.Header().Set("content-disposition", `attachment; filename="`+imaging.ExportName(c.CreatedAt)+`"`)
	}
	w.Header().Set("content-type", http.DetectContentType(data))
	w.Header().Set("cache-control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "session unavailable"})
		return
	}

	recent := sess.History.Recent(s.historyDisplay)
	out := historyJSON{
		Total:   sess.History.Len(),
		Entries: make([]creationJSON, 0, len(recent)),
	}
	for _, c := range recent {
		out.Entries = append(out.Entries, toCreationJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "session unavailable"})
		return
	}
	if sess.Busy() {
		writeJSON(w, http.StatusConflict, apiError{Error: "正在研磨丹青，请稍候"})
		return
	}
	sess.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the browser's session, issuing a fresh id cookie when
// none (or an unreadable one) is presented.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*creation.Session, error) {
	cs, _ := s.cookies.Get(r, cookieName)

	id, _ := cs.Values[sessionKey].(string)
	if id != "" {
		return s.sessions.Get(id), nil
	}

	id = uuid.NewString()
	cs.Values[sessionKey] = id
	if err := cs.Save(r, w); err != nil {
		s.logger.Error("save session cookie failed", "err", err)
		return nil, err
	}
	return s.sessions.Get(id), nil
}

func toCreationJSON(c *creation.Creation) creationJSON {
	base := "/api/creations/" + c.ID + "/image"
	return creationJSON{
		ID:           c.ID,
		Poem:         c.Poem,
		Caption:      imaging.Caption(c.Poem),
		Style:        string(c.Style),
		StyleLabel:   c.Style.Label(),
		Keywords:     c.Keywords,
		Fingerprint:  c.Fingerprint,
		CreatedAt:    c.CreatedAt.Format("2006-01-02 15:04"),
		ImageURL:     base,
		MountedURL:   base + "?mounted=1",
		DownloadURL:  base + "?download=1",
		DownloadName: imaging.ExportName(c.CreatedAt),
	}
}

func statusFor(state creation.State) int {
	switch state {
	case creation.StateRejected:
		return http.StatusUnprocessableEntity
	case creation.StateFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseBool(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
