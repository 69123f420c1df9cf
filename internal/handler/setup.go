package handler

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"shortclaim/internal/database"
	"shortclaim/internal/model"
)

type SetupHandler struct {
	db   *database.DB
	tmpl *template.Template
	log  *zap.Logger
}

func NewSetupHandler(db *database.DB, tmpl *template.Template, log *zap.Logger) *SetupHandler {
	return &SetupHandler{db: db, tmpl: tmpl, log: log}
}

// SetupPage creates the first admin; it disappears once any user exists.
func (h *SetupHandler) SetupPage(w http.ResponseWriter, r *http.Request) {
	if hasUsers, _ := h.db.HasUsers(); hasUsers {
		http.NotFound(w, r)
		return
	}
	h.renderError(w, "")
}

func (h *SetupHandler) SetupSubmit(w http.ResponseWriter, r *http.Request) {
	if hasUsers, _ := h.db.HasUsers(); hasUsers {
		http.NotFound(w, r)
		return
	}

	_ = r.ParseForm()
	username := r.FormValue("username")
	password := r.FormValue("password")

	switch {
	case username == "":
		h.renderError(w, "Username is required")
		return
	case len(password) < 8:
		h.renderError(w, "Password must be at least 8 characters")
		return
	case password != r.FormValue("confirm_password"):
		h.renderError(w, "Passwords do not match")
		return
	}

	if err := h.db.CreateUser(username, password, model.RoleAdmin); err != nil {
		h.renderError(w, "Failed to create user: "+err.Error())
		return
	}
	h.log.Info("initial admin created", zap.String("username", username))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *SetupHandler) renderError(w http.ResponseWriter, msg string) {
	var data map[string]string
	if msg != "" {
		data = map[string]string{"Error": msg}
	}
	if err := h.tmpl.ExecuteTemplate(w, "setup.html", data); err != nil {
		h.log.Error("render setup failed", zap.Error(err))
	}
}

type userCounter interface {
	HasUsers() (bool, error)
}

func RequireSetupComplete(db userCounter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasUsers, _ := db.HasUsers(); !hasUsers {
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
