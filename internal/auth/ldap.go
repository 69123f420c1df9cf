package auth

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"shortclaim/internal/config"
	"shortclaim/internal/model"
)

type LDAPResult struct {
	Username string
	Groups   []string
}

type LDAPClient struct {
	cfg config.LDAPConfig
}

func NewLDAPClient(cfg config.LDAPConfig) *LDAPClient {
	return &LDAPClient{cfg: cfg}
}

// Authenticate binds with the service account to find the user, then binds
// as the user to check the password.
func (lc *LDAPClient) Authenticate(username, password string) (*LDAPResult, error) {
	if password == "" {
		// An empty password would be an unauthenticated bind.
		return nil, fmt.Errorf("ldap: empty password")
	}
	conn, err := lc.connect()
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(lc.cfg.BindDN, lc.cfg.BindPassword); err != nil {
		return nil, fmt.Errorf("ldap service bind: %w", err)
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, 30, false,
		fmt.Sprintf(lc.cfg.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", lc.cfg.UsernameAttr, "memberOf"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("user not found or ambiguous: %d results", len(result.Entries))
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("ldap user bind: %w", err)
	}

	groups := entry.GetAttributeValues("memberOf")
	if len(groups) == 0 {
		groups = lc.searchGroups(conn, entry.DN, entry.GetAttributeValue(lc.cfg.UsernameAttr))
	}

	return &LDAPResult{
		Username: entry.GetAttributeValue(lc.cfg.UsernameAttr),
		Groups:   groups,
	}, nil
}

// searchGroups is the fallback for directories without memberOf. In the
// filter %s is the user DN and %u the login name.
func (lc *LDAPClient) searchGroups(conn *ldap.Conn, userDN, login string) []string {
	tmpl := lc.cfg.GroupFilter
	if tmpl == "" {
		tmpl = "(|(member=%s)(uniqueMember=%s))"
	}
	filter := strings.ReplaceAll(tmpl, "%s", ldap.EscapeFilter(userDN))
	filter = strings.ReplaceAll(filter, "%u", ldap.EscapeFilter(login))

	res, err := conn.Search(ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"dn"},
		nil,
	))
	if err != nil {
		return nil
	}
	groups := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		groups = append(groups, e.DN)
	}
	return groups
}

func (lc *LDAPClient) ResolveRole(groups []string) (string, bool) {
	return ResolveRole(lc.cfg.GroupMapping, groups)
}

// ResolveRole maps directory groups to a role via mapping (role -> group
// DN). The most privileged matching role wins; no match means no access.
func ResolveRole(mapping map[string]string, groups []string) (string, bool) {
	for _, role := range []string{model.RoleAdmin, model.RoleReviewer, model.RoleSubmitter} {
		want, ok := mapping[role]
		if !ok {
			continue
		}
		for _, g := range groups {
			if strings.EqualFold(g, want) {
				return role, true
			}
		}
	}
	return "", false
}

func (lc *LDAPClient) connect() (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: lc.cfg.SkipVerify}

	if strings.HasPrefix(lc.cfg.URL, "ldaps://") {
		return ldap.DialURL(lc.cfg.URL, ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(lc.cfg.URL)
	if err != nil {
		return nil, err
	}
	if lc.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return conn, nil
}
