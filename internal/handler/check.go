package handler

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"shortclaim/internal/auth"
	"shortclaim/internal/claim"
	"shortclaim/internal/service"
)

// Claims is what the web layer needs from the claim service.
// *service.ClaimService satisfies it.
type Claims interface {
	Writable() bool
	Check(ctx context.Context, name, email string) (*service.CheckResult, error)
	Submit(ctx context.Context, req service.SubmitRequest, actor service.Actor) (common.Hash, error)
	SetStatus(ctx context.Context, id common.Hash, approved bool, actor service.Actor) (common.Hash, error)
	Withdraw(ctx context.Context, id common.Hash, actor service.Actor) (common.Hash, error)
}

type CheckHandler struct {
	claims     Claims
	sessionMgr *auth.SessionManager
	tmpl       *template.Template
	log        *zap.Logger
}

func NewCheckHandler(claims Claims, sm *auth.SessionManager, tmpl *template.Template, log *zap.Logger) *CheckHandler {
	return &CheckHandler{claims: claims, sessionMgr: sm, tmpl: tmpl, log: log}
}

// Check renders the domain checks: TXT record present, its format, DNSSEC
// state, and every claimable shape with its price.
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	email := strings.TrimSpace(r.URL.Query().Get("email"))

	data := page(h.sessionMgr, r, "Check a domain")
	data["Name"] = name
	data["Email"] = email
	data["Writable"] = h.claims.Writable()

	if name != "" {
		res, err := h.claims.Check(r.Context(), name, email)
		switch {
		case errors.Is(err, claim.ErrIneligible):
			data["Error"] = name + " has no short name that can be claimed"
		case err != nil:
			h.log.Warn("check failed", zap.String("name", name), zap.Error(err))
			data["Error"] = "Check failed: " + err.Error()
		default:
			data["Result"] = res
			data["CanSubmit"] = res.ProofValid() && claim.IsValidEmail(res.Email) && h.claims.Writable()
		}
	}
	render(w, h.tmpl, data, h.log)
}

func (h *CheckHandler) Submit(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	req := service.SubmitRequest{
		Name:   strings.TrimSpace(r.FormValue("name")),
		Email:  strings.TrimSpace(r.FormValue("email")),
		Label:  r.FormValue("label"),
		Method: r.FormValue("method"),
	}
	back := url.Values{"name": {req.Name}, "email": {req.Email}}

	hash, err := h.claims.Submit(r.Context(), req, actorOf(h.sessionMgr, r))
	if err != nil {
		h.log.Warn("submit failed", zap.String("name", req.Name), zap.String("label", req.Label), zap.Error(err))
		redirectWithMsg(w, r, "/check", back, "Error: "+err.Error())
		return
	}
	redirectWithMsg(w, r, "/check", back, "Claim for "+req.Label+".eth submitted in "+hash.Hex())
}
