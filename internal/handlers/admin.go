package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/audit"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/auth"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/export"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/roster"
)

const (
	MsgExportUploaded = "Export uploaded to "
	MsgExportFailed   = "Failed to upload export"
)

// operator is one request acting for an operator session: the ranking
// service cookies are loaded from the session and saved back afterwards.
type operator struct {
	sess     *auth.Session
	upstream *gateway.Session
	ctl      *roster.Controller
}

func (s *Server) operator(r *http.Request) *operator {
	sess := auth.FromContext(r.Context())
	if sess == nil {
		sess = &auth.Session{}
	}
	up := gateway.NewSession(sess.UpstreamCookies())
	return &operator{
		sess:     sess,
		upstream: up,
		ctl:      s.roster.For(sess.ID, s.gw.WithSession(up)),
	}
}

func (o *operator) name() string {
	if o.sess.Operator != "" {
		return o.sess.Operator
	}
	if o.sess.User != nil {
		return o.sess.User.Username
	}
	return ""
}

// persist stores the upstream cookies on the session. It must run before
// anything is written to w.
func (s *Server) persist(w http.ResponseWriter, r *http.Request, o *operator) {
	if o.sess.ID == "" {
		return
	}
	o.sess.SetUpstreamCookies(o.upstream.Cookies())
	if err := s.sessions.Save(w, r, o.sess); err != nil {
		logger.Warn("Failed to save operator session", "error", err)
	}
}

func (s *Server) record(r *http.Request, o *operator, action string, err error, superseded bool, payload map[string]interface{}) {
	e := audit.Entry{
		Session:  o.sess.ID,
		Operator: o.name(),
		Action:   action,
		Outcome:  audit.OutcomeOf(err, superseded),
		Payload:  payload,
	}
	if err != nil {
		e.Detail = roster.Message(err)
	}
	s.audit.Record(r.Context(), e)
}

// seats reads the requested seat count, clamped to the configured range
func (s *Server) seats(r *http.Request) int {
	n := formInt(r, "seats")
	f := s.cfg.Form
	switch {
	case n == 0:
		return f.SeatsDefault
	case n < f.SeatsMin:
		return f.SeatsMin
	case n > f.SeatsMax:
		return f.SeatsMax
	}
	return n
}

func (s *Server) seatChoices() []int {
	out := make([]int, 0, s.cfg.Form.SeatsMax-s.cfg.Form.SeatsMin+1)
	for n := s.cfg.Form.SeatsMin; n <= s.cfg.Form.SeatsMax; n++ {
		out = append(out, n)
	}
	return out
}

func errorStatus(err error) int {
	if audit.OutcomeOf(err, false) == audit.OutcomeFailed {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

// renderPanel completes the panel with whatever the action did not already
// load and renders it. The form is built last so it sees the freshest roster.
func (s *Server) renderPanel(w http.ResponseWriter, r *http.Request, o *operator, status, seats int, known *roster.Panel, data *adminPage) {
	ctx := r.Context()
	p := known
	if p == nil {
		p = &roster.Panel{}
	}
	if p.Roster == nil {
		p.Roster = o.ctl.LoadRoster(ctx)
	}
	if p.Regions == nil {
		p.Regions = o.ctl.LoadRegions(ctx)
	}
	if p.Games == nil {
		p.Games = o.ctl.Games().LoadGames(ctx)
	}
	if p.Form == nil {
		form, err := o.ctl.Games().SetSeatCount(seats)
		if err != nil {
			logger.Error("Failed to build game form", "seats", seats, "error", err)
			renderError(w, http.StatusInternalServerError, "Failed to build game form")
			return
		}
		p.Form = form
	}

	if data == nil {
		data = &adminPage{}
	}
	alerts := data.Alerts
	data.page = s.basePage(r, "Admin")
	data.Alerts = alerts
	data.Panel = p
	data.Seats = seats
	data.SeatChoices = s.seatChoices()
	data.RegionPlaceholder = roster.RegionPlaceholder
	data.CanUpload = s.uploader != nil
	s.render.page(w, status, "admin", data)
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, username string, alerts ...Alert) {
	data := &loginPage{page: s.basePage(r, "Admin Login"), Username: username}
	data.Alerts = alerts
	s.render.page(w, status, "login", data)
}

// adminPage shows the login form, or the panel once the ranking service
// reports the session as logged in
func (s *Server) adminPage(w http.ResponseWriter, r *http.Request) {
	o := s.operator(r)
	loggedIn, _ := o.ctl.CheckSession(r.Context())
	s.persist(w, r, o)
	if !loggedIn {
		s.renderLogin(w, r, http.StatusOK, "")
		return
	}

	seats := s.seats(r)
	panel, err := o.ctl.OpenPanel(r.Context(), seats)
	if err != nil {
		logger.Error("Failed to open admin panel", "error", err)
		renderError(w, http.StatusInternalServerError, "Failed to open admin panel")
		return
	}
	s.renderPanel(w, r, o, http.StatusOK, seats, panel, nil)
}

// adminLogin logs the operator in upstream and redirects to the panel
func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	o := s.operator(r)
	username := r.PostFormValue("username")
	err := o.ctl.Login(r.Context(), username, r.PostFormValue("password"))
	if err == nil {
		o.sess.Operator = username
	}
	s.record(r, o, audit.ActionLogin, err, false, map[string]interface{}{"username": username})
	s.persist(w, r, o)

	if err != nil {
		s.renderLogin(w, r, errorStatus(err), username, errorAlert(roster.Message(err)))
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// adminLogout ends the upstream session and returns to the login form
func (s *Server) adminLogout(w http.ResponseWriter, r *http.Request) {
	o := s.operator(r)
	err := o.ctl.Logout(r.Context())
	s.record(r, o, audit.ActionLogout, err, false, nil)
	o.sess.Operator = ""
	s.persist(w, r, o)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// addPlayer registers a player and re-renders the roster
func (s *Server) addPlayer(w http.ResponseWriter, r *http.Request) {
	o := s.operator(r)
	seats := s.seats(r)
	name, region := r.PostFormValue("name"), r.PostFormValue("region_id")

	res, err := o.ctl.AddPlayer(r.Context(), name, region)
	s.record(r, o, audit.ActionAddPlayer, err, res != nil && res.Superseded,
		map[string]interface{}{"name": name, "region_id": region})
	s.persist(w, r, o)

	switch {
	case err != nil:
		data := &adminPage{Draft: adminDraft{PlayerName: name, PlayerRegion: region}}
		data.Alerts = []Alert{errorAlert(roster.Message(err))}
		s.renderPanel(w, r, o, errorStatus(err), seats, nil, data)
	case res.Superseded:
		w.WriteHeader(http.StatusNoContent)
	default:
		data := &adminPage{}
		data.Alerts = []Alert{successAlert(res.Notice, res.DismissAfter)}
		s.renderPanel(w, r, o, http.StatusOK, seats, &roster.Panel{Roster: res.Roster}, data)
	}
}

// deletePlayer asks for confirmation on GET and deletes on a confirmed POST
func (s *Server) deletePlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	o := s.operator(r)
	seats := s.seats(r)
	confirmed := r.Method == http.MethodPost && r.PostFormValue("confirm") == "yes"
	name := r.FormValue("name")
	if name == "" {
		if p, found := s.cache.Find(id); found {
			name = p.Name
		}
	}

	res, err := o.ctl.DeletePlayer(r.Context(), id, name, confirmed)
	if err != nil || confirmed {
		s.record(r, o, audit.ActionDeletePlayer, err, res != nil && res.Superseded,
			map[string]interface{}{"player_id": id, "name": name})
	}
	s.persist(w, r, o)

	switch {
	case err != nil:
		data := &adminPage{}
		data.Alerts = []Alert{errorAlert(roster.Message(err))}
		s.renderPanel(w, r, o, errorStatus(err), seats, nil, data)
	case res.Confirm != "":
		data := &adminPage{Confirm: &confirmDelete{PlayerID: id, Name: name, Question: res.Confirm}}
		s.renderPanel(w, r, o, http.StatusOK, seats, nil, data)
	case res.Superseded:
		w.WriteHeader(http.StatusNoContent)
	default:
		data := &adminPage{}
		data.Alerts = []Alert{successAlert(res.Notice, res.DismissAfter)}
		s.renderPanel(w, r, o, http.StatusOK, seats, &roster.Panel{Roster: res.Roster}, data)
	}
}

// addRegion creates a region and re-renders the region selector
func (s *Server) addRegion(w http.ResponseWriter, r *http.Request) {
	o := s.operator(r)
	seats := s.seats(r)
	name := r.PostFormValue("name")

	res, err := o.ctl.AddRegion(r.Context(), name)
	s.record(r, o, audit.ActionAddRegion, err, res != nil && res.Superseded, map[string]interface{}{"name": name})
	s.persist(w, r, o)

	switch {
	case err != nil:
		data := &adminPage{Draft: adminDraft{RegionName: name}}
		data.Alerts = []Alert{errorAlert(roster.Message(err))}
		s.renderPanel(w, r, o, errorStatus(err), seats, nil, data)
	case res.Superseded:
		w.WriteHeader(http.StatusNoContent)
	default:
		data := &adminPage{}
		data.Alerts = []Alert{successAlert(res.Notice, res.DismissAfter)}
		s.renderPanel(w, r, o, http.StatusOK, seats, &roster.Panel{Regions: res.Regions}, data)
	}
}

// readDraft collects the raw seat values of the game form
func readDraft(r *http.Request, seats int) []models.Seat {
	draft := make([]models.Seat, seats)
	for i := range draft {
		n := strconv.Itoa(i + 1)
		draft[i] = models.Seat{
			PlayerID:  r.PostFormValue("player_" + n),
			Placement: r.PostFormValue("placement_" + n),
			Points:    r.PostFormValue("points_" + n),
		}
	}
	return draft
}

// submitGame validates and records a game. A failed submission keeps the
// entered values so they can be corrected.
func (s *Server) submitGame(w http.ResponseWriter, r *http.Request) {
	o := s.operator(r)
	seats := s.seats(r)
	draft := readDraft(r, seats)
	games := o.ctl.Games()

	out, err := games.Submit(r.Context(), o.sess.ID, draft)
	payload := map[string]interface{}{"seats": seats}
	if out != nil && out.Game != nil {
		payload["game_id"] = out.Game.ID
	}
	s.record(r, o, audit.ActionSubmitGame, err, out != nil && out.Superseded, payload)
	s.persist(w, r, o)

	switch {
	case err != nil:
		data := &adminPage{}
		data.Alerts = []Alert{errorAlert(roster.Message(err))}
		s.renderPanel(w, r, o, errorStatus(err), seats, &roster.Panel{Form: games.Restore(draft)}, data)
	case out.Superseded:
		w.WriteHeader(http.StatusNoContent)
	default:
		data := &adminPage{}
		data.Alerts = []Alert{successAlert(out.Notice, out.DismissAfter)}
		s.renderPanel(w, r, o, http.StatusOK, seats, &roster.Panel{Games: out.Games, Form: out.Form}, data)
	}
}

// gamesFragment renders the recent games list alone
func (s *Server) gamesFragment(w http.ResponseWriter, r *http.Request) {
	s.render.fragment(w, "games_list", s.roster.Games().LoadGames(r.Context()))
}

// uploadExport builds the leaderboard export and puts it in the bucket
func (s *Server) uploadExport(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		http.NotFound(w, r)
		return
	}
	o := s.operator(r)
	seats := s.seats(r)

	data := &adminPage{}
	status := http.StatusOK
	body, err := export.Bytes(r.Context(), s.gw, 0, s.cfg.Ranking.GamesLimit)
	if err == nil {
		var key string
		key, err = s.uploader.Upload(r.Context(), export.FileName("", time.Now()), body)
		if err == nil {
			data.Alerts = []Alert{successAlert(MsgExportUploaded+key, roster.NoticeDismiss)}
		}
	}
	if err != nil {
		logger.Error("Export upload failed", "error", err)
		data.Alerts = []Alert{errorAlert(MsgExportFailed)}
		status = http.StatusBadGateway
	}
	s.renderPanel(w, r, o, status, seats, nil, data)
}
