package handler

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"shortclaim/internal/auth"
	"shortclaim/internal/database"
	"shortclaim/internal/model"
	"shortclaim/internal/util"
)

type AuthHandler struct {
	db         *database.DB
	sessionMgr *auth.SessionManager
	ldap       *auth.LDAPClient
	tmpl       *template.Template
	log        *zap.Logger
}

func NewAuthHandler(db *database.DB, sm *auth.SessionManager, ldap *auth.LDAPClient, tmpl *template.Template, log *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, sessionMgr: sm, ldap: ldap, tmpl: tmpl, log: log}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessionMgr.GetUsername(r); ok {
		http.Redirect(w, r, "/check", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, "")
}

// LoginSubmit tries LDAP first when enabled. Local accounts remain usable
// for admins so the console can be recovered if the directory is down.
func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := r.FormValue("username")
	password := r.FormValue("password")

	var user *model.User
	var method string

	if h.ldap != nil {
		result, err := h.ldap.Authenticate(username, password)
		if err != nil {
			h.log.Debug("ldap login failed", zap.String("username", username), zap.Error(err))
		} else {
			role, allowed := h.ldap.ResolveRole(result.Groups)
			if !allowed {
				h.renderLogin(w, "Access denied: you are not in an authorized group")
				return
			}
			if err := h.db.UpsertLDAPUser(result.Username, role); err != nil {
				h.log.Error("ldap user provisioning failed", zap.String("username", result.Username), zap.Error(err))
			}
			user, _ = h.db.GetUserByUsername(result.Username)
			method = "ldap"
		}
	}

	if user == nil {
		u, err := h.db.AuthenticateUser(username, password)
		if err == nil && u != nil {
			if h.ldap != nil && u.Role != model.RoleAdmin {
				h.renderLogin(w, "Local login is disabled. Use LDAP credentials.")
				return
			}
			user = u
			method = "local"
		}
	}

	if user == nil || !user.Active {
		h.renderLogin(w, "Invalid credentials")
		return
	}

	if _, err := h.sessionMgr.CreateSession(w, user.Username); err != nil {
		h.log.Error("session create failed", zap.Error(err))
		h.renderLogin(w, "Login failed, try again")
		return
	}

	_ = h.db.LogAudit(model.AuditEntry{
		Username:  user.Username,
		Action:    "login",
		Detail:    "auth=" + method,
		IPAddress: util.GetClientIP(r),
	})
	http.Redirect(w, r, "/check", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	username, _ := h.sessionMgr.GetUsername(r)
	h.sessionMgr.DestroySession(w, r)

	if username != "" {
		_ = h.db.LogAudit(model.AuditEntry{
			Username:  username,
			Action:    "logout",
			IPAddress: util.GetClientIP(r),
		})
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, msg string) {
	data := map[string]interface{}{"LDAPEnabled": h.ldap != nil}
	if msg != "" {
		data["Error"] = msg
	}
	if err := h.tmpl.ExecuteTemplate(w, "login.html", data); err != nil {
		h.log.Error("render login failed", zap.Error(err))
	}
}
