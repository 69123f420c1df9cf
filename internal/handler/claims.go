package handler

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"shortclaim/internal/auth"
	"shortclaim/internal/indexer"
	"shortclaim/internal/model"
)

const claimsPageSize = 20

var claimIDRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

type ClaimSource interface {
	Claims(ctx context.Context, f model.ClaimFilter, skip, limit int) ([]model.ClaimRecord, error)
}

type ClaimsCache interface {
	GetCachedClaims(key string) ([]model.ClaimRecord, bool)
	CacheClaims(key string, claims []model.ClaimRecord) error
}

type ClaimHandler struct {
	claims     Claims
	source     ClaimSource
	cache      ClaimsCache
	sessionMgr *auth.SessionManager
	tmpl       *template.Template
	log        *zap.Logger
}

func NewClaimHandler(claims Claims, source ClaimSource, cache ClaimsCache, sm *auth.SessionManager, tmpl *template.Template, log *zap.Logger) *ClaimHandler {
	return &ClaimHandler{claims: claims, source: source, cache: cache, sessionMgr: sm, tmpl: tmpl, log: log}
}

func cacheKey(f model.ClaimFilter, skip, limit int) string {
	return fmt.Sprintf("%q|%q|%q|%q|%s|%d|%d", f.NamePrefix, f.DNSNamePrefix, f.Owner, f.Email, f.Status, skip, limit)
}

// List shows one page of indexed claims matching the search box.
func (h *ClaimHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}
	skip := (pageNum - 1) * claimsPageSize

	data := page(h.sessionMgr, r, "Claims")
	data["Query"] = q
	data["Page"] = pageNum
	data["TotalPages"] = 0
	data["Writable"] = h.claims.Writable()

	if h.source == nil {
		data["Error"] = "No indexer is configured for this network"
		render(w, h.tmpl, data, h.log)
		return
	}

	filter := indexer.ParseSearch(q)
	key := cacheKey(filter, skip, claimsPageSize)
	claims, ok := h.cache.GetCachedClaims(key)
	if !ok {
		var err error
		claims, err = h.source.Claims(r.Context(), filter, skip, claimsPageSize)
		if err != nil {
			h.log.Warn("claims query failed", zap.String("q", q), zap.Error(err))
			data["Error"] = "Failed to load claims: " + err.Error()
			render(w, h.tmpl, data, h.log)
			return
		}
		_ = h.cache.CacheClaims(key, claims)
	}

	total := indexer.EstimateTotal(skip, claimsPageSize, len(claims))
	data["Claims"] = claims
	data["TotalPages"] = (total + claimsPageSize - 1) / claimsPageSize
	render(w, h.tmpl, data, h.log)
}

func (h *ClaimHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, true)
}

func (h *ClaimHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, false)
}

func (h *ClaimHandler) setStatus(w http.ResponseWriter, r *http.Request, approved bool) {
	id, ok := claimID(r)
	if !ok {
		redirectWithMsg(w, r, "/claims", nil, "Error: invalid claim id")
		return
	}
	hash, err := h.claims.SetStatus(r.Context(), id, approved, actorOf(h.sessionMgr, r))
	if err != nil {
		redirectWithMsg(w, r, "/claims", nil, "Error: "+err.Error())
		return
	}
	verb := "rejected"
	if approved {
		verb = "approved"
	}
	redirectWithMsg(w, r, "/claims", nil, fmt.Sprintf("Claim %s %s in %s", shortHex(id.Hex()), verb, hash.Hex()))
}

func (h *ClaimHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(r)
	if !ok {
		redirectWithMsg(w, r, "/claims", nil, "Error: invalid claim id")
		return
	}
	hash, err := h.claims.Withdraw(r.Context(), id, actorOf(h.sessionMgr, r))
	if err != nil {
		redirectWithMsg(w, r, "/claims", nil, "Error: "+err.Error())
		return
	}
	redirectWithMsg(w, r, "/claims", nil, fmt.Sprintf("Claim %s withdrawn in %s", shortHex(id.Hex()), hash.Hex()))
}

func claimID(r *http.Request) (common.Hash, bool) {
	raw := r.PathValue("id")
	if !claimIDRe.MatchString(raw) {
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

func shortHex(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}
