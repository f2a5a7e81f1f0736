package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/matryer/try"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/log"
)

// Contact is the local record mirroring one remote CRM contact within an
// owner scope. BusinessType and OutreachReady are locally-owned: they have no
// remote counterpart and must survive every sync cycle untouched unless
// explicitly set elsewhere.
type Contact struct {
	ID               string
	RemoteID         string
	OwnerID          string
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	Company          string
	Website          string
	Address          string
	City             string
	State            string
	Zip              string
	LifecycleStage   string
	LeadStatus       string
	BusinessType     string
	OutreachReady    bool
	RemoteCreatedAt  *time.Time
	RemoteModifiedAt *time.Time
	LastSyncedAt     time.Time
}

// LoadProfile selects how much of each existing record the loader reads.
type LoadProfile int

const (
	// LoadFull reads all columns; required whenever merging is needed.
	LoadFull LoadProfile = iota
	// LoadLight reads the remote identifier only; sufficient when the run
	// policy is insert-new-skip-existing.
	LoadLight
)

const contactColumns = `id, remote_id, owner_id, first_name, last_name, email, phone,
	company, website, address, city, state, zip, lifecycle_stage, lead_status,
	business_type, outreach_ready, remote_created_at, remote_modified_at, last_synced_at`

// LoadContacts bulk-loads the owner scope's records into a map keyed by
// remote identifier, reading fixed-size pages until a short page is
// returned. Owner scopes are bounded in practice, so the loop is uncapped.
func (db *DB) LoadContacts(ctx context.Context, ownerID string, profile LoadProfile) (map[string]Contact, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID is required")
	}

	index := make(map[string]Contact)
	offset := 0

	for {
		var (
			n   int
			err error
		)

		if profile == LoadLight {
			n, err = db.loadLightPage(ctx, ownerID, offset, index)
		} else {
			n, err = db.loadFullPage(ctx, ownerID, offset, index)
		}

		if err != nil {
			return nil, err
		}

		if n < common.LoadPageSize {
			break
		}

		offset += n
	}

	return index, nil
}

func (db *DB) loadLightPage(ctx context.Context, ownerID string, offset int, index map[string]Contact) (int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT remote_id FROM contacts WHERE owner_id = ? ORDER BY remote_id LIMIT ? OFFSET ?`,
		ownerID, common.LoadPageSize, offset)
	if err != nil {
		return 0, fmt.Errorf("failed to load contact identifiers: %w", err)
	}
	defer rows.Close()

	n := 0

	for rows.Next() {
		var remoteID string
		if err := rows.Scan(&remoteID); err != nil {
			return 0, fmt.Errorf("failed to scan contact identifier: %w", err)
		}

		index[remoteID] = Contact{RemoteID: remoteID, OwnerID: ownerID}
		n++
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating contact identifiers: %w", err)
	}

	return n, nil
}

func (db *DB) loadFullPage(ctx context.Context, ownerID string, offset int, index map[string]Contact) (int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE owner_id = ? ORDER BY remote_id LIMIT ? OFFSET ?`,
		ownerID, common.LoadPageSize, offset)
	if err != nil {
		return 0, fmt.Errorf("failed to load contacts: %w", err)
	}
	defer rows.Close()

	n := 0

	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return 0, err
		}

		index[c.RemoteID] = c
		n++
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating contacts: %w", err)
	}

	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var (
		c                       Contact
		remoteCreated, remoteMod sql.NullString
		lastSynced              string
		outreachReady           int
	)

	err := row.Scan(
		&c.ID,
		&c.RemoteID,
		&c.OwnerID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.Company,
		&c.Website,
		&c.Address,
		&c.City,
		&c.State,
		&c.Zip,
		&c.LifecycleStage,
		&c.LeadStatus,
		&c.BusinessType,
		&outreachReady,
		&remoteCreated,
		&remoteMod,
		&lastSynced,
	)
	if err != nil {
		return c, fmt.Errorf("failed to scan contact: %w", err)
	}

	c.OutreachReady = outreachReady != 0
	c.RemoteCreatedAt = nullStringToTime(remoteCreated, common.TimeLayout)
	c.RemoteModifiedAt = nullStringToTime(remoteMod, common.TimeLayout)

	if t, err := time.Parse(common.TimeLayout, lastSynced); err == nil {
		c.LastSyncedAt = t
	}

	return c, nil
}

// GetContact retrieves one record by business key.
// Returns sql.ErrNoRows if not found.
func (db *DB) GetContact(ctx context.Context, ownerID, remoteID string) (Contact, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE remote_id = ? AND owner_id = ?`,
		remoteID, ownerID)

	return scanContact(row)
}

// CountContacts returns the number of records in the owner scope.
func (db *DB) CountContacts(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE owner_id = ?`, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	return count, nil
}

// SetBusinessType sets the locally-owned classification for one record.
func (db *DB) SetBusinessType(ctx context.Context, ownerID, remoteID, businessType string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE contacts SET business_type = ? WHERE remote_id = ? AND owner_id = ?`,
		businessType, remoteID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to set business type: %w", err)
	}

	return nil
}

// SetOutreachReady sets the locally-owned readiness flag for one record.
func (db *DB) SetOutreachReady(ctx context.Context, ownerID, remoteID string, ready bool) error {
	readyInt := 0
	if ready {
		readyInt = 1
	}

	_, err := db.conn.ExecContext(ctx,
		`UPDATE contacts SET outreach_ready = ? WHERE remote_id = ? AND owner_id = ?`,
		readyInt, remoteID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to set outreach readiness: %w", err)
	}

	return nil
}

// MaxRemoteModifiedAt returns the latest stored remote modification
// timestamp in the owner scope, and whether one exists.
func (db *DB) MaxRemoteModifiedAt(ctx context.Context, ownerID string) (time.Time, bool, error) {
	var max sql.NullString

	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(remote_modified_at) FROM contacts WHERE owner_id = ?`, ownerID).Scan(&max)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query max modified timestamp: %w", err)
	}

	t := nullStringToTime(max, common.TimeLayout)
	if t == nil {
		return time.Time{}, false, nil
	}

	return *t, true, nil
}

// BatchPolicy controls recovery when a sub-batch write fails after retries.
type BatchPolicy int

const (
	// BatchOnly counts every record of a failed sub-batch as failed.
	BatchOnly BatchPolicy = iota
	// BatchThenRow retries a failed sub-batch one record at a time, so a
	// single bad record doesn't take its whole sub-batch down with it.
	BatchThenRow
)

// UpsertBatch writes merged payloads in fixed-size sub-batches using an
// insert-or-update keyed on (remote_id, owner_id). The batch is first
// deduplicated by business key (last write wins). Each sub-batch is retried
// with backoff; a sub-batch that still fails is counted as failed — wholly,
// or per surviving row under BatchThenRow — and the run continues.
func (db *DB) UpsertBatch(ctx context.Context, payloads []Contact, policy BatchPolicy, debug bool) (written, failed int) {
	deduped := dedupePayloads(payloads)

	for start := 0; start < len(deduped); start += common.BatchSize {
		end := start + common.BatchSize
		if end > len(deduped) {
			end = len(deduped)
		}

		chunk := deduped[start:end]

		err := try.Do(func(attempt int) (bool, error) {
			uErr := db.execUpsert(ctx, chunk)
			if uErr != nil {
				log.DebugPrint(debug, fmt.Sprintf("UpsertBatch | attempt %d failed for %d records (first: %s/%s): %s",
					attempt, len(chunk), chunk[0].RemoteID, chunk[0].Email, uErr.Error()), common.MaxDebugChars)

				if attempt < common.MaxBatchRetries {
					time.Sleep(common.RetryDelay(attempt))
				}
			}

			return attempt < common.MaxBatchRetries, uErr
		})

		if err == nil {
			written += len(chunk)
			continue
		}

		if policy == BatchThenRow {
			w, f := db.upsertRows(ctx, chunk, debug)
			written += w
			failed += f

			continue
		}

		failed += len(chunk)
	}

	return written, failed
}

// upsertRows writes a failed sub-batch one record at a time.
func (db *DB) upsertRows(ctx context.Context, chunk []Contact, debug bool) (written, failed int) {
	for i := range chunk {
		if err := db.execUpsert(ctx, chunk[i:i+1]); err != nil {
			log.DebugPrint(debug, fmt.Sprintf("upsertRows | record %s failed: %s", chunk[i].RemoteID, err.Error()), common.MaxDebugChars)
			failed++

			continue
		}

		written++
	}

	return written, failed
}

// dedupePayloads removes duplicate business keys within one batch,
// keeping the last occurrence.
func dedupePayloads(payloads []Contact) []Contact {
	lastIdx := make(map[string]int, len(payloads))
	for i, p := range payloads {
		lastIdx[p.RemoteID] = i
	}

	out := make([]Contact, 0, len(lastIdx))

	for i, p := range payloads {
		if lastIdx[p.RemoteID] == i {
			out = append(out, p)
		}
	}

	return out
}

func (db *DB) execUpsert(ctx context.Context, chunk []Contact) error {
	if len(chunk) == 0 {
		return nil
	}

	const cols = 20

	placeholders := make([]string, 0, len(chunk))
	args := make([]any, 0, len(chunk)*cols)

	for _, c := range chunk {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

		outreachReady := 0
		if c.OutreachReady {
			outreachReady = 1
		}

		args = append(args,
			c.ID, c.RemoteID, c.OwnerID,
			c.FirstName, c.LastName, c.Email, c.Phone,
			c.Company, c.Website, c.Address, c.City, c.State, c.Zip,
			c.LifecycleStage, c.LeadStatus,
			c.BusinessType, outreachReady,
			timeToNullString(c.RemoteCreatedAt, common.TimeLayout),
			timeToNullString(c.RemoteModifiedAt, common.TimeLayout),
			c.LastSyncedAt.UTC().Format(common.TimeLayout),
		)
	}

	// The conflict update deliberately leaves id and the locally-owned
	// columns alone: the primary key is stable once assigned, and
	// business_type/outreach_ready are never the remote's to write.
	query := `
	INSERT INTO contacts (` + contactColumns + `)
	VALUES ` + strings.Join(placeholders, ", ") + `
	ON CONFLICT(remote_id, owner_id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		email = excluded.email,
		phone = excluded.phone,
		company = excluded.company,
		website = excluded.website,
		address = excluded.address,
		city = excluded.city,
		state = excluded.state,
		zip = excluded.zip,
		lifecycle_stage = excluded.lifecycle_stage,
		lead_status = excluded.lead_status,
		remote_created_at = excluded.remote_created_at,
		remote_modified_at = excluded.remote_modified_at,
		last_synced_at = excluded.last_synced_at
	`

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %d contacts: %w", len(chunk), err)
	}

	return nil
}
