package handler

import (
	"html/template"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"shortclaim/internal/auth"
	"shortclaim/internal/service"
	"shortclaim/internal/util"
)

// page is the common data every layout render starts from.
func page(sm *auth.SessionManager, r *http.Request, title string) map[string]interface{} {
	data := map[string]interface{}{
		"Title":     title,
		"CSRFToken": sm.CSRFToken(r),
		"Flash":     r.URL.Query().Get("msg"),
		"Username":  "",
		"Role":      "",
		"CanReview": false,
	}
	if user, ok := sm.CurrentUser(r); ok {
		data["Username"] = user.Username
		data["Role"] = user.Role
		data["CanReview"] = user.CanReview()
	}
	return data
}

func render(w http.ResponseWriter, tmpl *template.Template, data map[string]interface{}, log *zap.Logger) {
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		log.Error("render failed", zap.Any("title", data["Title"]), zap.Error(err))
	}
}

func actorOf(sm *auth.SessionManager, r *http.Request) service.Actor {
	username, _ := sm.GetUsername(r)
	return service.Actor{Username: username, IPAddress: util.GetClientIP(r)}
}

// redirectWithMsg is the post/redirect/get step, carrying a flash message.
func redirectWithMsg(w http.ResponseWriter, r *http.Request, path string, params url.Values, msg string) {
	if params == nil {
		params = url.Values{}
	}
	if msg != "" {
		params.Set("msg", msg)
	}
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
