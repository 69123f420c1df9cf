package handler

import (
	"context"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"shortclaim/internal/auth"
	"shortclaim/internal/model"
	"shortclaim/internal/util"
)

type Zones interface {
	ListZones(ctx context.Context) ([]model.HostedZone, error)
	PublishOwner(ctx context.Context, zoneID, domain, address string) error
}

type AuditLogger interface {
	LogAudit(entry model.AuditEntry) error
}

// CacheInvalidator drops every cached zone list and claims page.
type CacheInvalidator interface {
	InvalidateAllCache()
}

type ZoneHandler struct {
	zones      Zones
	audit      AuditLogger
	cache      CacheInvalidator
	sessionMgr *auth.SessionManager
	tmpl       *template.Template
	log        *zap.Logger
}

func NewZoneHandler(zones Zones, audit AuditLogger, cache CacheInvalidator, sm *auth.SessionManager, tmpl *template.Template, log *zap.Logger) *ZoneHandler {
	return &ZoneHandler{zones: zones, audit: audit, cache: cache, sessionMgr: sm, tmpl: tmpl, log: log}
}

func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	data := page(h.sessionMgr, r, "Hosted Zones")
	zones, err := h.zones.ListZones(r.Context())
	if err != nil {
		data["Error"] = "Failed to load zones: " + err.Error()
	} else {
		data["Zones"] = zones
	}
	render(w, h.tmpl, data, h.log)
}

// Refresh forgets cached Route53 and indexer results.
func (h *ZoneHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.cache.InvalidateAllCache()
	redirectWithMsg(w, r, "/zones", nil, "Caches cleared")
}

// Publish writes the _ens owner record for a domain in one of the
// operator's zones.
func (h *ZoneHandler) Publish(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	zoneID := r.PathValue("zoneID")
	domain := strings.TrimSpace(r.FormValue("domain"))
	address := strings.TrimSpace(r.FormValue("address"))

	if err := h.zones.PublishOwner(r.Context(), zoneID, domain, address); err != nil {
		redirectWithMsg(w, r, "/zones", nil, "Error: "+err.Error())
		return
	}

	username, _ := h.sessionMgr.GetUsername(r)
	_ = h.audit.LogAudit(model.AuditEntry{
		Username:  username,
		Action:    "publish_owner",
		DNSName:   domain,
		Detail:    "a=" + address + " in zone " + zoneID,
		IPAddress: util.GetClientIP(r),
	})
	redirectWithMsg(w, r, "/zones", nil, "Published _ens."+domain)
}
