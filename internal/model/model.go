package model

import (
	"math/big"
	"strings"
	"time"
)

type ClaimStatus string

const (
	StatusPending   ClaimStatus = "PENDING"
	StatusApproved  ClaimStatus = "APPROVED"
	StatusRejected  ClaimStatus = "REJECTED"
	StatusWithdrawn ClaimStatus = "WITHDRAWN"
)

// ParseClaimStatus accepts any casing. The indexer reports rejected claims
// as DECLINED, which is folded into StatusRejected.
func ParseClaimStatus(s string) (ClaimStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending, true
	case "APPROVED":
		return StatusApproved, true
	case "REJECTED", "DECLINED":
		return StatusRejected, true
	case "WITHDRAWN":
		return StatusWithdrawn, true
	}
	return "", false
}

// ResolvedClaim is one claimable shape of a DNS name together with what the
// ledger says about it. It is never stored.
type ResolvedClaim struct {
	Label     string
	Method    string
	Cost      *big.Int
	Submitted bool
}

// ClaimRecord mirrors a claim as reported by the indexer.
type ClaimRecord struct {
	ID          string
	Label       string
	DNSName     string
	Email       string
	Owner       string
	Status      ClaimStatus
	SubmittedAt time.Time
}

type ClaimFilter struct {
	NamePrefix    string
	DNSNamePrefix string
	Owner         string
	Email         string
	Status        ClaimStatus
}

type HostedZone struct {
	ID    string
	Name  string
	Label string
}

type User struct {
	ID         int64
	Username   string
	PassHash   string
	Role       string
	Active     bool
	AuthSource string // "local" or "ldap"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const (
	RoleAdmin     = "admin"
	RoleReviewer  = "reviewer"
	RoleSubmitter = "submitter"
)

func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleReviewer || role == RoleSubmitter
}

// CanReview reports whether the role may approve or reject claims.
func (u *User) CanReview() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleReviewer)
}

type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type AuditEntry struct {
	ID        int64
	Username  string
	Action    string
	DNSName   string
	Label     string
	ClaimID   string
	TxHash    string
	Detail    string
	IPAddress string
	CreatedAt time.Time
}
