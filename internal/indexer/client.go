package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"shortclaim/internal/model"
)

const claimsQuery = `query Claims($filter: Claim_filter, $skip: Int, $limit: Int) {
  claims(first: $limit, skip: $skip, orderBy: name, where: $filter) {
    id
    name
    dnsName
    email
    owner
    status
    submittedAt
  }
}`

// Client queries the claims subgraph.
type Client struct {
	gql *graphql.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{gql: graphql.NewClient(url, graphql.WithHTTPClient(&http.Client{Timeout: timeout}))}
}

type claimRow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	DNSName     string          `json:"dnsName"`
	Email       string          `json:"email"`
	Owner       string          `json:"owner"`
	Status      string          `json:"status"`
	SubmittedAt json.RawMessage `json:"submittedAt"`
}

type claimsData struct {
	Claims []claimRow `json:"claims"`
}

func filterVars(f model.ClaimFilter) map[string]interface{} {
	where := map[string]interface{}{}
	if f.NamePrefix != "" {
		where["name_starts_with"] = f.NamePrefix
	}
	if f.DNSNamePrefix != "" {
		where["dnsName_starts_with"] = f.DNSNamePrefix
	}
	if f.Owner != "" {
		where["owner"] = strings.ToLower(f.Owner)
	}
	if f.Email != "" {
		where["email"] = f.Email
	}
	if f.Status != "" {
		status := string(f.Status)
		if f.Status == model.StatusRejected {
			status = "DECLINED"
		}
		where["status"] = status
	}
	return where
}

// Claims returns one page of claims ordered by name. Any GraphQL error
// fails the whole page.
func (c *Client) Claims(ctx context.Context, f model.ClaimFilter, skip, limit int) ([]model.ClaimRecord, error) {
	req := graphql.NewRequest(claimsQuery)
	req.Var("filter", filterVars(f))
	req.Var("skip", skip)
	req.Var("limit", limit)

	var out claimsData
	if err := c.gql.Run(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}

	claims := make([]model.ClaimRecord, 0, len(out.Claims))
	for _, row := range out.Claims {
		status, _ := model.ParseClaimStatus(row.Status)
		claims = append(claims, model.ClaimRecord{
			ID:          row.ID,
			Label:       row.Name,
			DNSName:     row.DNSName,
			Email:       row.Email,
			Owner:       row.Owner,
			Status:      status,
			SubmittedAt: parseUnix(row.SubmittedAt),
		})
	}
	return claims, nil
}

// parseUnix accepts seconds as a JSON number or a quoted BigInt.
func parseUnix(raw json.RawMessage) time.Time {
	s := strings.Trim(string(raw), `"`)
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
