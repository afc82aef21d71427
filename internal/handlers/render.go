package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/auth"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/format"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/listview"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/ranking"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/roster"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageFiles = map[string]string{
	"leaderboard": "templates/leaderboard.html",
	"login":       "templates/login.html",
	"admin":       "templates/admin.html",
}

// Alert is one notice shown above the page. Success notices dismiss themselves.
type Alert struct {
	Kind      string
	Message   string
	DismissMS int64
}

func successAlert(msg string, after time.Duration) Alert {
	return Alert{Kind: "success", Message: msg, DismissMS: after.Milliseconds()}
}

func errorAlert(msg string) Alert {
	return Alert{Kind: "error", Message: msg}
}

type page struct {
	Title  string
	CSRF   string
	User   *auth.User
	Alerts []Alert
}

type boardPage struct {
	page
	Regions  []ranking.RegionOption
	RegionID int
	Board    *listview.View[ranking.Row]
	Modal    *ranking.Modal
	CloseURL string
}

type loginPage struct {
	page
	Username string
}

type confirmDelete struct {
	PlayerID int
	Name     string
	Question string
}

type adminDraft struct {
	PlayerName   string
	PlayerRegion string
	RegionName   string
}

type adminPage struct {
	page
	Panel             *roster.Panel
	Seats             int
	SeatChoices       []int
	RegionPlaceholder string
	Confirm           *confirmDelete
	Draft             adminDraft
	CanUpload         bool
}

type renderer struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

func newRenderer() (*renderer, error) {
	base, err := template.ParseFS(templateFS, "templates/base.html", "templates/fragments.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base templates: %w", err)
	}

	r := &renderer{pages: make(map[string]*template.Template, len(pageFiles)), fragments: base}
	for name, file := range pageFiles {
		t, err := template.Must(base.Clone()).ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// page renders a full page through the base layout
func (r *renderer) page(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.pages[name]
	if !ok {
		renderError(w, http.StatusInternalServerError, "unknown page "+name)
		return
	}
	r.execute(w, status, t, "base", data)
}

// fragment renders one named partial without the layout
func (r *renderer) fragment(w http.ResponseWriter, name string, data any) {
	r.execute(w, http.StatusOK, r.fragments, name, data)
}

func (r *renderer) execute(w http.ResponseWriter, status int, t *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("Failed to render template", "template", name, "error", err)
		renderError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func renderError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html><p class=\"alert alert-error\">%s</p>", format.Escape(msg))
}

func staticFiles() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
