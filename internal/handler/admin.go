package handler

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"shortclaim/internal/auth"
	"shortclaim/internal/database"
	"shortclaim/internal/model"
	"shortclaim/internal/util"
)

const auditPageSize = 50

type AdminHandler struct {
	db         *database.DB
	sessionMgr *auth.SessionManager
	usersTmpl  *template.Template
	auditTmpl  *template.Template
	log        *zap.Logger
}

func NewAdminHandler(db *database.DB, sm *auth.SessionManager, usersTmpl, auditTmpl *template.Template, log *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, sessionMgr: sm, usersTmpl: usersTmpl, auditTmpl: auditTmpl, log: log}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	data := page(h.sessionMgr, r, "Users")
	data["Roles"] = []string{model.RoleSubmitter, model.RoleReviewer, model.RoleAdmin}
	users, err := h.db.ListUsers()
	if err != nil {
		data["Error"] = "Failed to load users: " + err.Error()
	} else {
		data["Users"] = users
	}
	render(w, h.usersTmpl, data, h.log)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	newUsername := r.FormValue("username")
	password := r.FormValue("password")
	role := r.FormValue("role")
	if !model.IsValidRole(role) {
		role = model.RoleSubmitter
	}

	if len(password) < 8 {
		redirectWithMsg(w, r, "/admin/users", nil, "Error: password must be at least 8 characters")
		return
	}
	if err := h.db.CreateUser(newUsername, password, role); err != nil {
		redirectWithMsg(w, r, "/admin/users", nil, "Error: "+err.Error())
		return
	}
	h.audit(r, "create_user", fmt.Sprintf("created user=%s role=%s", newUsername, role))
	redirectWithMsg(w, r, "/admin/users", nil, fmt.Sprintf("User '%s' created", newUsername))
}

func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	target := r.FormValue("username")
	role := r.FormValue("role")
	if err := h.db.SetUserRole(target, role); err != nil {
		redirectWithMsg(w, r, "/admin/users", nil, "Error: "+err.Error())
		return
	}
	h.audit(r, "set_role", fmt.Sprintf("user=%s role=%s", target, role))
	redirectWithMsg(w, r, "/admin/users", nil, fmt.Sprintf("User '%s' is now %s", target, role))
}

func (h *AdminHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username, _ := h.sessionMgr.GetUsername(r)
	target := r.FormValue("username")
	if target == username {
		redirectWithMsg(w, r, "/admin/users", nil, "Cannot deactivate yourself")
		return
	}
	active := r.FormValue("active") == "true"
	if err := h.db.SetUserActive(target, active); err != nil {
		redirectWithMsg(w, r, "/admin/users", nil, "Error: "+err.Error())
		return
	}
	if !active {
		_ = h.db.DeleteUserSessions(target)
	}
	h.audit(r, "set_active", fmt.Sprintf("user=%s active=%t", target, active))
	redirectWithMsg(w, r, "/admin/users", nil, fmt.Sprintf("User '%s' updated", target))
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username, _ := h.sessionMgr.GetUsername(r)
	target := r.FormValue("username")
	if target == username {
		redirectWithMsg(w, r, "/admin/users", nil, "Cannot delete yourself")
		return
	}
	if err := h.db.DeleteUser(target); err != nil {
		redirectWithMsg(w, r, "/admin/users", nil, "Error: "+err.Error())
		return
	}
	h.audit(r, "delete_user", "deleted user="+target)
	redirectWithMsg(w, r, "/admin/users", nil, fmt.Sprintf("User '%s' deleted", target))
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}

	data := page(h.sessionMgr, r, "Audit Log")
	data["Page"] = pageNum
	data["Total"] = 0
	data["TotalPages"] = 0
	entries, total, err := h.db.ListAuditLog(auditPageSize, (pageNum-1)*auditPageSize)
	if err != nil {
		data["Error"] = "Failed to load audit log: " + err.Error()
		render(w, h.auditTmpl, data, h.log)
		return
	}
	data["Entries"] = entries
	data["Total"] = total
	data["TotalPages"] = (total + auditPageSize - 1) / auditPageSize
	render(w, h.auditTmpl, data, h.log)
}

func (h *AdminHandler) audit(r *http.Request, action, detail string) {
	username, _ := h.sessionMgr.GetUsername(r)
	if err := h.db.LogAudit(model.AuditEntry{
		Username:  username,
		Action:    action,
		Detail:    detail,
		IPAddress: util.GetClientIP(r),
	}); err != nil {
		h.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
