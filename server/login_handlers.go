package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/login"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName    string
	Title      string
	Action     string
	Next       string
	Username   string
	Remember   bool
	Error      string
	Candidates []string
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
	Next     string `json:"next"`
}

type loginResponse struct {
	Namespace string `json:"namespace"`
	Redirect  string `json:"redirect"`
	Role      string `json:"role"`
	Username  string `json:"username"`
}

var loginTitles = map[namespace.Namespace]string{
	namespace.User:     "Customer",
	namespace.Agency:   "Agency",
	namespace.Employee: "Employee",
	namespace.Admin:    "Administrator",
}

// LoginPageHandler displays the login page of ns (GET {ns}/login)
func (s *Server) LoginPageHandler(ns namespace.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderLogin(w, http.StatusOK, s.loginPageData(ns, r.URL.Query().Get("next"), r.URL.Query().Get("error")))
	}
}

// LoginSubmissionHandler signs in to ns (POST {ns}/login). Form posts are
// answered with a redirect or the re-rendered page, JSON posts with JSON.
func (s *Server) LoginSubmissionHandler(ns namespace.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readLoginBody(w, r)
		if err != nil {
			if wantsJSON(r) {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid login body")
				return
			}
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		b := s.browser(w, r)
		res, err := b.flow.Login(r.Context(), login.Request{
			Username: body.Username,
			Password: body.Password,
			Role:     ns.String(),
			Remember: body.Remember,
			Next:     body.Next,
		})
		if r.Context().Err() != nil {
			return
		}
		if err != nil {
			log.Info().Err(err).Str("namespace", ns.String()).Msg("login failed")
			if wantsJSON(r) {
				writeSessionError(w, err)
				return
			}
			status, _ := errorStatus(err)
			data := s.loginPageData(ns, body.Next, err.Error())
			data.Username = body.Username
			data.Remember = body.Remember
			var ambiguous *errors.AmbiguousIdentityError
			if errors.As(err, &ambiguous) {
				data.Candidates = ambiguous.Candidates
			}
			s.renderLogin(w, status, data)
			return
		}

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, loginResponse{
				Namespace: res.Namespace.String(),
				Redirect:  res.Redirect,
				Role:      res.Claims.EffectiveRole(),
				Username:  res.Claims.Username,
			})
			return
		}
		redirectSuccess(w, r, res.Redirect)
	}
}

// LogoutHandler clears one namespace (POST /logout?ns=agency) and sends the
// browser to that namespace's login page. An unknown ns is a 400 and clears nothing.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, ok := namespace.Parse(r.FormValue("ns"))
		if !ok {
			detail := fmt.Sprintf("unknown namespace %q", r.FormValue("ns"))
			if wantsJSON(r) {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", detail)
				return
			}
			http.Error(w, detail, http.StatusBadRequest)
			return
		}
		b := s.browser(w, r)
		if err := b.flow.Logout(r.Context(), ns); err != nil {
			log.Err(err).Str("namespace", ns.String()).Msg("logout failed")
			if wantsJSON(r) {
				writeJSONError(w, http.StatusInternalServerError, "logout_failed", err.Error())
				return
			}
			http.Error(w, "Failed to sign out", http.StatusInternalServerError)
			return
		}
		b.unmountAll()
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]string{"namespace": ns.String(), "redirect": ns.LoginPath()})
			return
		}
		redirectSuccess(w, r, ns.LoginPath())
	}
}

func readLoginBody(w http.ResponseWriter, r *http.Request) (loginBody, error) {
	var body loginBody
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body)
		return body, err
	}
	if err := r.ParseForm(); err != nil {
		return body, err
	}
	body.Username = r.PostFormValue("username")
	body.Password = r.PostFormValue("password")
	body.Remember = r.PostFormValue("remember") == "true" || r.PostFormValue("remember") == "on"
	body.Next = r.PostFormValue("next")
	return body, nil
}

func (s *Server) loginPageData(ns namespace.Namespace, next, errMsg string) LoginPageData {
	return LoginPageData{
		AppName: s.config.GetAppName(),
		Title:   loginTitles[ns],
		Action:  ns.LoginPath(),
		Next:    next,
		Error:   errMsg,
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, data LoginPageData) {
	if s.loginTmpl == nil {
		http.Error(w, "Login page unavailable", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.loginTmpl.Execute(&buf, data); err != nil {
		log.Err(err).Msg("Failed to render login template")
		http.Error(w, "Login page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
