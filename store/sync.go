package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/contacts"
	"github.com/syncwise/crmsync/log"
	"github.com/syncwise/crmsync/session"
)

// Sync modes. Insert creates new local records only, Sync merges every remote
// contact, and Incremental merges only contacts modified since the newest
// local record.
const (
	ModeInsert      = "insert"
	ModeSync        = "sync"
	ModeIncremental = "incremental"
)

// SyncInput describes one synchronization run.
type SyncInput struct {
	Session       *session.Session
	DB            *DB
	Mode          string
	Stages        contacts.StageMap
	PageSize      int           // override default page size
	PostPageDelay time.Duration // override default inter-page throttle
	BatchPolicy   BatchPolicy
	JobType       string // defaults to JobTypeContactSync
}

// Counts are the counters accumulated across one run. Created and Updated
// are attributed at merge time, before the batch write; records of a
// sub-batch that still fails after retries are additionally counted in
// Errors, so Created+Updated can exceed the rows actually written on a run
// with write failures.
type Counts struct {
	Fetched int
	Created int
	Updated int
	Skipped int
	Errors  int
}

// SyncedContact summarizes one contact written during a run.
type SyncedContact struct {
	RemoteID string
	Name     string
	Created  bool
	Changes  []FieldChange
}

// SyncOutput is the result of one run.
type SyncOutput struct {
	Success        bool
	Counts         Counts
	Duration       time.Duration
	Timestamp      time.Time
	Mode           string
	ErrorMessage   string
	SyncedContacts []SyncedContact
	SyncSince      *time.Time
	JobID          string
}

var hiWhite = color.New(color.FgHiWhite).SprintFunc()

// Summary returns a one-line human-readable description of the run.
func (so SyncOutput) Summary() string {
	status := "completed"
	if !so.Success {
		status = "failed"
	}

	return fmt.Sprintf("%s sync %s | fetched %s created %s updated %s skipped %s errors %s in %v",
		so.Mode, status,
		hiWhite(so.Counts.Fetched), hiWhite(so.Counts.Created), hiWhite(so.Counts.Updated),
		hiWhite(so.Counts.Skipped), hiWhite(so.Counts.Errors), so.Duration.Round(time.Millisecond))
}

// DeriveCutoff converts the newest locally stored remote modification time
// into an incremental search cutoff. The cutoff is floored to midnight UTC:
// re-fetching up to a day of already-synced records is harmless because
// merging is idempotent, whereas an over-tight cutoff can permanently miss
// records whose remote clock lagged.
func DeriveCutoff(maxModified time.Time) time.Time {
	return maxModified.UTC().Truncate(24 * time.Hour)
}

// Sync runs one fetch, merge and upsert pass against the remote CRM.
//
// Every run writes a sync_jobs ledger row, created before the first remote
// call and finalized on every exit path. Concurrent runs against the same
// store are not serialized here; callers that need exclusion must provide it.
func Sync(si SyncInput) (so SyncOutput, err error) {
	start := time.Now()
	ctx := context.Background()

	so.Mode = si.Mode
	so.Timestamp = start.UTC()

	if err = validateSyncInput(si); err != nil {
		return
	}

	debug := si.Session.Debug
	jobType := si.JobType

	if jobType == "" {
		jobType = JobTypeContactSync
	}

	so.JobID, err = si.DB.CreateJob(ctx, jobType)
	if err != nil {
		return
	}

	mode := si.Mode

	var since time.Time

	if mode == ModeIncremental {
		maxModified, found, mErr := si.DB.MaxRemoteModifiedAt(ctx, si.Session.OwnerID)

		switch {
		case mErr != nil:
			err = mErr

			so = finalize(ctx, si.DB, so, start, debug, err)

			return
		case !found:
			// Nothing synced yet, so there is no cutoff to search
			// from. Fall back to a full merge run.
			log.DebugPrint(debug, "Sync | no local records, downgrading incremental to sync", common.MaxDebugChars)

			mode = ModeSync
			so.Mode = ModeSync
		default:
			since = DeriveCutoff(maxModified)
			so.SyncSince = &since

			log.DebugPrint(debug, fmt.Sprintf("Sync | incremental cutoff %s", since.Format(common.TimeLayout)), common.MaxDebugChars)
		}
	}

	profile := LoadFull
	if mode == ModeInsert {
		profile = LoadLight
	}

	existing, err := si.DB.LoadContacts(ctx, si.Session.OwnerID, profile)
	if err != nil {
		so = finalize(ctx, si.DB, so, start, debug, err)

		return
	}

	log.DebugPrint(debug, fmt.Sprintf("Sync | loaded %d local records", len(existing)), common.MaxDebugChars)

	stages := si.Stages
	if stages == nil {
		stages = contacts.DefaultStages()
	}

	delay := si.PostPageDelay
	if delay == 0 {
		delay = postPageDelay()
	}

	maxPages := common.MaxSyncPages
	if mode == ModeIncremental {
		maxPages = common.MaxSearchPages
	}

	tracker := contacts.NewTracker()

	var cursor string

	for pages := 0; ; pages++ {
		if pages >= maxPages {
			log.DebugPrint(debug, fmt.Sprintf("Sync | stopping at page cap %d", maxPages), common.MaxDebugChars)

			break
		}

		var page contacts.Page

		if mode == ModeIncremental {
			var sOut contacts.SearchOutput

			sOut, err = contacts.SearchPage(contacts.SearchInput{
				Session:       si.Session,
				ModifiedSince: since,
				Cursor:        cursor,
				PageSize:      si.PageSize,
			})
			page = sOut.Page
		} else {
			page, err = contacts.ListPage(contacts.ListInput{
				Session:  si.Session,
				Cursor:   cursor,
				PageSize: si.PageSize,
			})
		}

		if err != nil {
			so = finalize(ctx, si.DB, so, start, debug, err)

			return
		}

		so.Counts.Fetched += len(page.Contacts)

		payloads, synced := mergePage(mergePageInput{
			page:     page,
			existing: existing,
			tracker:  tracker,
			mode:     mode,
			ownerID:  si.Session.OwnerID,
			stages:   stages,
			counts:   &so.Counts,
		})
		so.SyncedContacts = append(so.SyncedContacts, synced...)

		if len(payloads) > 0 {
			written, failed := si.DB.UpsertBatch(ctx, payloads, si.BatchPolicy, debug)

			so.Counts.Errors += failed

			log.DebugPrint(debug, fmt.Sprintf("Sync | page %d wrote %d failed %d", pages+1, written, failed), common.MaxDebugChars)
		}

		cursor = page.Cursor
		if cursor == "" {
			break
		}

		time.Sleep(delay)
	}

	so.Success = true
	so = finalize(ctx, si.DB, so, start, debug, nil)

	return so, nil
}

type mergePageInput struct {
	page     contacts.Page
	existing map[string]Contact
	tracker  *contacts.Tracker
	mode     string
	ownerID  string
	stages   contacts.StageMap
	counts   *Counts
}

// mergePage turns one remote page into write payloads, applying duplicate
// suppression and the per-mode skip rules. Repeats within the page are
// dropped up front; the run-scoped tracker catches repeats across pages.
func mergePage(in mergePageInput) (payloads []Contact, synced []SyncedContact) {
	now := time.Now()

	deduped := contacts.DeDupeByID(in.page.Contacts)
	in.counts.Skipped += len(in.page.Contacts) - len(deduped)

	for _, remote := range deduped {
		if remote.ID == "" || in.tracker.Seen(remote.ID) {
			in.counts.Skipped++

			continue
		}

		prior, known := in.existing[remote.ID]

		if in.mode == ModeInsert && known {
			in.counts.Skipped++

			continue
		}

		var priorPtr *Contact

		if known {
			priorPtr = &prior
		}

		payload := Merge(remote, priorPtr, in.ownerID, in.stages, now)
		payloads = append(payloads, payload)

		sc := SyncedContact{
			RemoteID: remote.ID,
			Name:     remote.DisplayName(),
			Created:  !known,
		}

		if known {
			in.counts.Updated++

			if in.mode == ModeIncremental {
				sc.Changes = DetectChanges(remote, prior, in.stages)
			}
		} else {
			in.counts.Created++
		}

		// Later pages must merge onto the just-written state, not the
		// state loaded at run start.
		in.existing[remote.ID] = payload

		synced = append(synced, sc)
	}

	return payloads, synced
}

func validateSyncInput(si SyncInput) error {
	switch {
	case si.Session == nil || !si.Session.Valid():
		return errors.New("invalid session")
	case si.DB == nil:
		return errors.New("database is required")
	}

	switch si.Mode {
	case ModeInsert, ModeSync, ModeIncremental:
		return nil
	default:
		return fmt.Errorf("invalid mode: %q", si.Mode)
	}
}

// finalize writes the terminal ledger row, stamps the output and logs the
// run summary. Ledger failures during an already failing run are logged and
// swallowed so the original error is what the caller sees.
func finalize(ctx context.Context, db *DB, so SyncOutput, start time.Time, debug bool, runErr error) SyncOutput {
	so.Duration = time.Since(start)

	status := JobStatusCompleted

	if runErr != nil {
		status = JobStatusFailed
		so.ErrorMessage = runErr.Error()
	}

	if so.JobID != "" {
		if err := db.CompleteJob(ctx, so.JobID, status, so.Counts, so.ErrorMessage); err != nil {
			log.DebugPrint(true, fmt.Sprintf("Sync | failed to finalize job %s: %v", so.JobID, err), common.MaxDebugChars)
		}
	}

	log.DebugPrint(debug, "Sync | "+so.Summary(), common.MaxDebugChars)

	return so
}

func postPageDelay() time.Duration {
	if ms, ok, err := common.ParseEnvInt64(common.EnvPostPageDelay); err == nil && ok && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}

	return common.PostPageDelay * time.Millisecond
}
