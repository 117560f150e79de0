package store

const (
	policyColumns = `id, rule_name, url_pattern, file_hash, mime_type, action, match_type,
		enforcement_action, created_at, created_by, expires_at, hit_count, last_hit`

	createPolicy = `INSERT INTO policies (
			rule_name,
			url_pattern,
			file_hash,
			mime_type,
			action,
			match_type,
			enforcement_action,
			created_at,
			created_by,
			expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	getPolicy = `SELECT ` + policyColumns + `
		FROM policies
		WHERE id = ?;`

	updatePolicy = `UPDATE policies SET
			rule_name          = ?,
			url_pattern        = ?,
			file_hash          = ?,
			mime_type          = ?,
			action             = ?,
			match_type         = ?,
			enforcement_action = ?,
			expires_at         = ?
		WHERE id = ?;`

	deletePolicy = `DELETE FROM policies WHERE id = ?;`

	// The three match queries below implement the strict priority order of
	// the matcher: hash, then URL pattern, then rule name. Expired policies
	// never match. Within one priority tier the oldest policy wins, making
	// matches deterministic.
	matchPolicyByHash = `SELECT ` + policyColumns + `
		FROM policies
		WHERE file_hash = ? AND file_hash != ''
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id
		LIMIT 1;`

	matchPolicyByURLPattern = `SELECT ` + policyColumns + `
		FROM policies
		WHERE url_pattern IS NOT NULL AND url_pattern != ''
		  AND ? LIKE url_pattern
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id
		LIMIT 1;`

	matchPolicyByRuleName = `SELECT ` + policyColumns + `
		FROM policies
		WHERE rule_name = ? AND rule_name != ''
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id
		LIMIT 1;`

	recordPolicyHit = `UPDATE policies SET
			hit_count = hit_count + 1,
			last_hit  = ?
		WHERE id = ?;`

	cleanupExpiredPolicies = `DELETE FROM policies
		WHERE expires_at IS NOT NULL AND expires_at <= ?;`

	relationshipColumns = `id, form_origin, action_origin, relationship_type,
		created_at, created_by, last_used, use_count, expires_at, notes`

	createRelationship = `INSERT INTO credential_relationships (
			form_origin,
			action_origin,
			relationship_type,
			created_at,
			created_by,
			expires_at,
			notes
		) VALUES (?, ?, ?, ?, ?, ?, ?);`

	findRelationship = `SELECT id
		FROM credential_relationships
		WHERE form_origin = ? AND action_origin = ? AND relationship_type = ?
		  AND (expires_at IS NULL OR expires_at > ?)
		LIMIT 1;`

	updateRelationshipUsage = `UPDATE credential_relationships SET
			use_count = use_count + 1,
			last_used = ?
		WHERE id = ?;`

	deleteRelationship = `DELETE FROM credential_relationships WHERE id = ?;`

	listRelationships = `SELECT ` + relationshipColumns + `
		FROM credential_relationships
		ORDER BY id;`

	recordThreat = `INSERT INTO threat_history (
			detected_at,
			url,
			filename,
			file_hash,
			mime_type,
			file_size,
			rule_name,
			severity,
			action_taken,
			policy_id,
			verdict_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	cleanupOldThreats = `DELETE FROM threat_history WHERE detected_at < ?;`

	recordAlert = `INSERT INTO credential_alerts (
			detected_at,
			form_origin,
			action_origin,
			has_password_field,
			has_email_field,
			uses_https,
			is_cross_origin,
			severity,
			decision,
			anomaly_score,
			indicators
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	templateColumns = `id, name, version, category, built_in, rule_name, url_pattern,
		mime_type, action, match_type, enforcement_action, description, created_at`

	createTemplate = `INSERT INTO policy_templates (
			name,
			version,
			category,
			built_in,
			rule_name,
			url_pattern,
			mime_type,
			action,
			match_type,
			enforcement_action,
			description,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	getTemplateByName = `SELECT ` + templateColumns + `
		FROM policy_templates
		WHERE name = ?;`

	listTemplates = `SELECT ` + templateColumns + `
		FROM policy_templates
		ORDER BY category, name;`

	updateBuiltinTemplate = `UPDATE policy_templates SET
			version            = ?,
			category           = ?,
			rule_name          = ?,
			url_pattern        = ?,
			mime_type          = ?,
			action             = ?,
			match_type         = ?,
			enforcement_action = ?,
			description        = ?
		WHERE name = ? AND built_in = 1 AND version < ?;`

	quarantineColumns = `id, original_path, quarantine_path, quarantine_reason,
		threat_score, threat_level, quarantined_at, file_size, sha256_hash`

	createQuarantineRecord = `INSERT INTO quarantine_records (
			original_path,
			quarantine_path,
			quarantine_reason,
			threat_score,
			threat_level,
			quarantined_at,
			file_size,
			sha256_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	getQuarantineRecord = `SELECT ` + quarantineColumns + `
		FROM quarantine_records
		WHERE id = ?;`

	findQuarantineRecordByHash = `SELECT ` + quarantineColumns + `
		FROM quarantine_records
		WHERE sha256_hash = ?;`

	deleteQuarantineRecord = `DELETE FROM quarantine_records WHERE id = ?;`

	quarantineTotals = `SELECT COUNT(*), COALESCE(SUM(file_size), 0)
		FROM quarantine_records;`
)
