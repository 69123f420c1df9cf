package database

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"shortclaim/internal/model"
)

const cacheTTL = 5 * time.Minute

// CacheClaims stores one indexer page under key.
func (db *DB) CacheClaims(key string, claims []model.ClaimRecord) error {
	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO claims_cache (query_key, payload, cached_at) VALUES ($1, $2, NOW())
		 ON CONFLICT(query_key) DO UPDATE SET payload = EXCLUDED.payload, cached_at = NOW()`,
		key, string(payload),
	)
	return err
}

func (db *DB) GetCachedClaims(key string) ([]model.ClaimRecord, bool) {
	var payload string
	var cachedAt time.Time
	err := db.conn.QueryRow(
		"SELECT payload, cached_at FROM claims_cache WHERE query_key = $1", key,
	).Scan(&payload, &cachedAt)
	if err != nil || time.Since(cachedAt) > cacheTTL {
		return nil, false
	}
	var claims []model.ClaimRecord
	if err := json.Unmarshal([]byte(payload), &claims); err != nil {
		return nil, false
	}
	return claims, true
}

// InvalidateClaimsCache drops every cached page; called after any ledger
// write since the indexer will soon report the change.
func (db *DB) InvalidateClaimsCache() {
	if _, err := db.conn.Exec("DELETE FROM claims_cache"); err != nil {
		db.log.Warn("claims cache invalidation failed", zap.Error(err))
	}
}

func (db *DB) CacheZones(zones []model.HostedZone) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM zones_cache"); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO zones_cache (zone_id, name, label) VALUES ($1, $2, $3)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, z := range zones {
		if _, err := stmt.Exec(z.ID, z.Name, z.Label); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) GetCachedZones() ([]model.HostedZone, bool) {
	var cachedAt time.Time
	err := db.conn.QueryRow("SELECT MIN(cached_at) FROM zones_cache HAVING COUNT(*) > 0").Scan(&cachedAt)
	if err != nil || time.Since(cachedAt) > cacheTTL {
		return nil, false
	}

	rows, err := db.conn.Query("SELECT zone_id, name, label FROM zones_cache ORDER BY name")
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	var zones []model.HostedZone
	for rows.Next() {
		var z model.HostedZone
		if err := rows.Scan(&z.ID, &z.Name, &z.Label); err != nil {
			return nil, false
		}
		zones = append(zones, z)
	}
	return zones, len(zones) > 0
}

func (db *DB) InvalidateAllCache() {
	_, _ = db.conn.Exec("DELETE FROM claims_cache")
	_, _ = db.conn.Exec("DELETE FROM zones_cache")
}
