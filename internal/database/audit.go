package database

import (
	"database/sql"

	"shortclaim/internal/model"
)

func (db *DB) LogAudit(entry model.AuditEntry) error {
	_, err := db.conn.Exec(
		`INSERT INTO audit_log (username, action, dns_name, label, claim_id, tx_hash, detail, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Username, entry.Action, nullable(entry.DNSName), nullable(entry.Label),
		nullable(entry.ClaimID), nullable(entry.TxHash), nullable(entry.Detail), entry.IPAddress,
	)
	return err
}

// ListAuditLog returns a page of entries, newest first, and the total count.
func (db *DB) ListAuditLog(limit, offset int) ([]model.AuditEntry, int, error) {
	var total int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.Query(
		`SELECT id, username, action, dns_name, label, claim_id, tx_hash, detail, ip_address, created_at
		 FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var dnsName, label, claimID, txHash, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &dnsName, &label, &claimID,
			&txHash, &detail, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.DNSName = dnsName.String
		e.Label = label.String
		e.ClaimID = claimID.String
		e.TxHash = txHash.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
