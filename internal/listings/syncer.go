package listings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marketmirror/marketmirror/internal/events"
	"github.com/marketmirror/marketmirror/internal/logging"
	"github.com/marketmirror/marketmirror/internal/marketplace"
	"github.com/marketmirror/marketmirror/internal/metrics"
	"github.com/marketmirror/marketmirror/internal/retry"
	"go.uber.org/zap"
)

// Status is the process-wide marketplace connection status. Only the
// Syncer transitions it; anyone may read it.
type Status int

const (
	StatusNotInitialized Status = iota
	StatusInitializing
	StatusConnectionFailure
	StatusMerchant
	StatusNotMerchant
)

func (s Status) String() string {
	switch s {
	case StatusNotInitialized:
		return "not_initialized"
	case StatusInitializing:
		return "initializing"
	case StatusConnectionFailure:
		return "connection_failure"
	case StatusMerchant:
		return "merchant"
	case StatusNotMerchant:
		return "not_merchant"
	default:
		return "unknown"
	}
}

// Remote is the marketplace API surface the Syncer drives.
// marketplace.Client implements it.
type Remote interface {
	MerchantStatus(ctx context.Context) (int, error)
	Listings(ctx context.Context) (marketplace.Response, error)
	Listing(ctx context.Context, listingID int) (marketplace.Response, error)
	CreateListing(ctx context.Context, folderID string) (marketplace.Response, error)
	UpdateListing(ctx context.Context, listingID int, folderID, versionFolderID string, isListed bool) (marketplace.Response, error)
	AssociateListing(ctx context.Context, listingID int, folderID, versionFolderID string) (marketplace.Response, error)
	DeleteListing(ctx context.Context, listingID int) (marketplace.Response, error)
}

// Hierarchy is the read-only view of the local folder tree the
// classification queries walk. inventory.Tree implements it.
type Hierarchy interface {
	AncestryPath(id string) []string
}

// Config configures a Syncer.
type Config struct {
	Remote    Remote
	Hierarchy Hierarchy           // optional; nil disables ancestry queries
	Events    *events.Broadcaster // optional; created when nil
	// Poll bounds the follow-up fetch-one polling after a 202 response.
	Poll retry.Config
}

// Syncer owns the listing cache and pending set and drives the remote
// protocol. High-level operations validate preconditions, reject busy
// folders synchronously, then issue the remote call without blocking the
// caller; the response is reconciled into the cache by a completion
// goroutine. Per-folder ordering needs no lock ceremony beyond the
// pending dedup: a folder has at most one request in flight.
type Syncer struct {
	cache     *Cache
	pending   *PendingSet
	remote    Remote
	hierarchy Hierarchy
	events    *events.Broadcaster
	poll      retry.Config

	mu     sync.Mutex // guards status and the check-then-begin sequences
	status Status

	wg sync.WaitGroup
}

// NewSyncer creates a Syncer with an empty session cache.
func NewSyncer(cfg Config) *Syncer {
	if cfg.Remote == nil {
		panic("listings: Config.Remote is required")
	}
	broadcaster := cfg.Events
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster()
	}
	poll := cfg.Poll
	if poll.MaxAttempts == 0 && poll.InitialWait == 0 {
		poll = retry.Config{
			MaxAttempts: 6,
			InitialWait: 2 * time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		}
	}
	return &Syncer{
		cache:     NewCache(),
		pending:   NewPendingSet(),
		remote:    cfg.Remote,
		hierarchy: cfg.Hierarchy,
		events:    broadcaster,
		poll:      poll,
		status:    StatusNotInitialized,
	}
}

// Cache exposes the listing cache for read access and for the external
// stock-count refresher's dirty polling.
func (s *Syncer) Cache() *Cache {
	return s.cache
}

// Events returns the observer broadcaster.
func (s *Syncer) Events() *events.Broadcaster {
	return s.events
}

// Status returns the process-wide marketplace status.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Syncer) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed {
		logging.Info("marketplace status changed", zap.String("status", status.String()))
		s.events.Publish(events.Event{
			Type:   events.EventStatusChanged,
			Status: status.String(),
		})
	}
}

// Initialize probes the merchant status and, for merchants, triggers the
// first full refresh. It returns the resulting status.
func (s *Syncer) Initialize(ctx context.Context) Status {
	s.setStatus(StatusInitializing)

	code, err := s.remote.MerchantStatus(ctx)
	switch {
	case err != nil:
		logging.Error("merchant probe failed", zap.Error(err))
		s.setStatus(StatusConnectionFailure)
	case code == marketplace.StatusDone:
		s.setStatus(StatusMerchant)
		s.GetAllListings(ctx)
	case code == marketplace.StatusNotFound:
		s.setStatus(StatusNotMerchant)
	default:
		logging.Warn("unexpected merchant probe status", zap.Int("status", code))
		s.setStatus(StatusConnectionFailure)
	}
	return s.Status()
}

// Wait blocks until every in-flight remote operation has reconciled.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// CreateListing asks the marketplace to create a listing for folderID.
// Returns false when the folder is already listed or already pending.
func (s *Syncer) CreateListing(ctx context.Context, folderID string) bool {
	s.mu.Lock()
	if folderID == "" || s.cache.Contains(folderID) {
		s.mu.Unlock()
		logging.Debug("create rejected: already listed", zap.String("folder", folderID))
		return false
	}
	if !s.beginLocked(folderID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.CreateListing(ctx, folderID)
		s.reconcile(ctx, "create", folderID, resp, err, func(resp marketplace.Response) error {
			listing := firstListing(resp, folderID)
			if err := s.cache.Upsert(folderID, listing.ID, listing.VersionFolderID, listing.IsListed); err != nil {
				return err
			}
			if listing.EditURL != "" {
				s.cache.SetEditURL(folderID, listing.EditURL)
			}
			return nil
		})
	})
	return true
}

// ActivateListing publishes or unpublishes a listing.
func (s *Syncer) ActivateListing(ctx context.Context, folderID string, activate bool) bool {
	s.mu.Lock()
	record, ok := s.cache.Get(folderID)
	if !ok || !record.Listed() {
		s.mu.Unlock()
		logging.Debug("activate rejected: not listed", zap.String("folder", folderID))
		return false
	}
	if !s.beginLocked(folderID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.UpdateListing(ctx, record.ListingID, folderID, record.VersionFolderID, activate)
		s.reconcile(ctx, "activate", folderID, resp, err, func(marketplace.Response) error {
			if !s.cache.SetActive(folderID, activate) {
				return fmt.Errorf("record vanished for folder %s", folderID)
			}
			return nil
		})
	})
	return true
}

// ClearListing deletes a listing from the marketplace. The record is
// removed from the cache only once the server confirms.
func (s *Syncer) ClearListing(ctx context.Context, folderID string) bool {
	s.mu.Lock()
	record, ok := s.cache.Get(folderID)
	if !ok || !record.Listed() {
		s.mu.Unlock()
		logging.Debug("clear rejected: not listed", zap.String("folder", folderID))
		return false
	}
	if !s.beginLocked(folderID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.DeleteListing(ctx, record.ListingID)
		s.reconcile(ctx, "clear", folderID, resp, err, func(marketplace.Response) error {
			s.cache.Remove(folderID)
			return nil
		})
	})
	return true
}

// SetVersionFolder designates versionFolderID as the listing's active
// version. An empty versionFolderID clears the designation.
func (s *Syncer) SetVersionFolder(ctx context.Context, folderID, versionFolderID string) bool {
	s.mu.Lock()
	record, ok := s.cache.Get(folderID)
	if !ok || !record.Listed() || versionFolderID == folderID || s.cache.Contains(versionFolderID) {
		s.mu.Unlock()
		logging.Debug("set-version rejected", zap.String("folder", folderID), zap.String("version", versionFolderID))
		return false
	}
	if owner, bound := s.cache.VersionOwner(versionFolderID); bound && owner != folderID {
		s.mu.Unlock()
		return false
	}
	if !s.beginLocked(folderID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.UpdateListing(ctx, record.ListingID, folderID, versionFolderID, record.Active)
		s.reconcile(ctx, "set_version", folderID, resp, err, func(marketplace.Response) error {
			if !s.cache.SetVersionFolder(folderID, versionFolderID) {
				return fmt.Errorf("version folder update refused for folder %s", folderID)
			}
			return nil
		})
	})
	return true
}

// AssociateListing binds an existing marketplace listing id to a local
// folder that has no record yet. Fails when the id is bound elsewhere.
func (s *Syncer) AssociateListing(ctx context.Context, folderID string, listingID int) bool {
	s.mu.Lock()
	if folderID == "" || listingID == UnknownListingID || s.cache.Contains(folderID) {
		s.mu.Unlock()
		return false
	}
	if _, bound := s.cache.FolderFor(listingID); bound {
		s.mu.Unlock()
		logging.Debug("associate rejected: listing id bound",
			zap.String("folder", folderID), zap.Int("listing_id", listingID))
		return false
	}
	if !s.beginLocked(folderID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.AssociateListing(ctx, listingID, folderID, "")
		s.reconcile(ctx, "associate", folderID, resp, err, func(resp marketplace.Response) error {
			listing := firstListing(resp, folderID)
			if listing.ID == UnknownListingID {
				listing.ID = listingID
			}
			if err := s.cache.Upsert(folderID, listing.ID, listing.VersionFolderID, listing.IsListed); err != nil {
				return err
			}
			if listing.EditURL != "" {
				s.cache.SetEditURL(folderID, listing.EditURL)
			}
			return nil
		})
	})
	return true
}

// GetListing refreshes one listing's tuple from the server.
func (s *Syncer) GetListing(ctx context.Context, folderID string) bool {
	s.mu.Lock()
	record, ok := s.cache.Get(folderID)
	if !ok || !record.Listed() {
		s.mu.Unlock()
		return false
	}
	if !s.beginLocked(folderID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.Listing(ctx, record.ListingID)
		s.reconcile(ctx, "fetch_one", folderID, resp, err, func(resp marketplace.Response) error {
			return s.applyServerTuple(resp, folderID)
		})
	})
	return true
}

// GetAllListings refreshes the whole cache from the server. The merge is
// additive: records missing from the response stay cached until the
// server explicitly confirms their deletion. Returns false when a bulk
// refresh is already running.
func (s *Syncer) GetAllListings(ctx context.Context) bool {
	s.mu.Lock()
	if s.pending.Bulk() {
		s.mu.Unlock()
		metrics.RecordBusyRejection()
		return false
	}
	s.pending.SetBulk(true)
	s.mu.Unlock()

	s.launch(func() {
		resp, err := s.remote.Listings(ctx)
		defer s.pending.SetBulk(false)

		if err != nil {
			s.reportTransport("fetch_all", "", err)
			return
		}
		switch marketplace.Classify(resp.Status) {
		case marketplace.OutcomeSuccess:
			merged := 0
			for _, listing := range resp.Listings {
				if listing.FolderID == "" {
					continue
				}
				if err := s.cache.Upsert(listing.FolderID, listing.ID, listing.VersionFolderID, listing.IsListed); err != nil {
					logging.Warn("skipping listing in full refresh", zap.Int("listing_id", listing.ID), zap.Error(err))
					continue
				}
				if listing.EditURL != "" {
					s.cache.SetEditURL(listing.FolderID, listing.EditURL)
				}
				merged++
			}
			metrics.RecordReconcile("fetch_all", "success")
			logging.Info("full refresh merged", zap.Int("listings", merged), zap.Int("cached", s.cache.Len()))
			s.notifyChanged("fetch_all", "")
		default:
			s.reportError("fetch_all", "", resp)
		}
	})
	return true
}

// beginLocked rejects busy folders and marks the rest pending.
// Callers hold s.mu.
func (s *Syncer) beginLocked(folderID string) bool {
	if s.pending.Contains(folderID) {
		metrics.RecordBusyRejection()
		logging.Debug("operation rejected: folder busy", zap.String("folder", folderID))
		return false
	}
	s.pending.Begin(folderID)
	return true
}

func (s *Syncer) launch(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// reconcile applies one response for a per-folder operation: success
// mutates the cache atomically and clears pending; 202 keeps the folder
// pending and polls; errors clear pending and publish a report. The
// apply function runs with the response already classified as success.
func (s *Syncer) reconcile(ctx context.Context, op, folderID string, resp marketplace.Response, err error, apply func(marketplace.Response) error) {
	if err != nil {
		s.pending.End(folderID)
		s.reportTransport(op, folderID, err)
		return
	}

	switch marketplace.Classify(resp.Status) {
	case marketplace.OutcomeSuccess:
		s.finish(op, folderID, resp, apply)
	case marketplace.OutcomeProcessing:
		s.pollProcessing(ctx, op, folderID, resp, apply)
	default:
		s.pending.End(folderID)
		s.reportError(op, folderID, resp)
	}
}

func (s *Syncer) finish(op, folderID string, resp marketplace.Response, apply func(marketplace.Response) error) {
	if err := apply(resp); err != nil {
		s.pending.End(folderID)
		logging.Error("reconciliation refused", zap.String("operation", op), zap.String("folder", folderID), zap.Error(err))
		metrics.RecordReconcile(op, "invariant_violation")
		s.events.Publish(events.Event{
			Type:      events.EventErrorReport,
			FolderID:  folderID,
			Operation: op,
			Code:      marketplace.StatusBadRequest,
			Detail:    map[string]any{"error": err.Error()},
		})
		return
	}
	s.pending.End(folderID)
	metrics.RecordReconcile(op, "success")
	s.notifyChanged(op, folderID)
}

// errStillProcessing marks a poll attempt that found the job unfinished.
var errStillProcessing = errors.New("job still processing")

// pollProcessing handles a 202: the folder stays pending while fetch-one
// is polled with bounded backoff. An exhausted budget clears pending and
// reports a job timeout. This is the bounded-wait policy for responses
// that never settle: without it a 202 whose job dies server-side would
// leave the folder pending forever.
func (s *Syncer) pollProcessing(ctx context.Context, op, folderID string, accepted marketplace.Response, apply func(marketplace.Response) error) {
	listingID := firstListing(accepted, folderID).ID
	if listingID == UnknownListingID {
		if record, ok := s.cache.Get(folderID); ok {
			listingID = record.ListingID
		}
	}
	if listingID == UnknownListingID {
		s.pending.End(folderID)
		s.reportError(op, folderID, marketplace.Response{
			Status: marketplace.StatusJobTimeout,
			Detail: map[string]any{"error": "accepted for processing without a listing id"},
		})
		return
	}

	logging.Debug("polling processing job", zap.String("operation", op), zap.Int("listing_id", listingID))
	final, err := retry.DoWithResult(ctx, s.poll, func() (marketplace.Response, error) {
		resp, err := s.remote.Listing(ctx, listingID)
		if err != nil {
			return resp, err
		}
		if marketplace.Classify(resp.Status) == marketplace.OutcomeProcessing {
			return resp, retry.Retryable(errStillProcessing)
		}
		return resp, nil
	})

	switch {
	case err != nil && errors.Is(err, errStillProcessing):
		s.pending.End(folderID)
		s.reportError(op, folderID, marketplace.Response{
			Status: marketplace.StatusJobTimeout,
			Detail: map[string]any{"error": "processing poll budget exhausted"},
		})
	case err != nil:
		s.pending.End(folderID)
		s.reportTransport(op, folderID, err)
	case op == "clear" && final.Status == marketplace.StatusNotFound:
		// The deletion job finished: the listing is gone.
		s.finish(op, folderID, final, apply)
	case marketplace.Classify(final.Status) == marketplace.OutcomeSuccess:
		if op == "clear" {
			// Fetch-one still finds the listing; the delete job failed.
			s.pending.End(folderID)
			s.reportError(op, folderID, marketplace.Response{
				Status: marketplace.StatusJobFailed,
				Detail: map[string]any{"error": "listing still present after delete job"},
			})
			return
		}
		// The server's settled tuple wins over whatever the operation
		// intended; apply it wholesale.
		s.finish(op, folderID, final, func(resp marketplace.Response) error {
			return s.applyServerTuple(resp, folderID)
		})
	default:
		s.pending.End(folderID)
		s.reportError(op, folderID, final)
	}
}

// applyServerTuple upserts the full server-returned tuple for folderID.
func (s *Syncer) applyServerTuple(resp marketplace.Response, folderID string) error {
	listing := firstListing(resp, folderID)
	if listing.FolderID == "" {
		listing.FolderID = folderID
	}
	if err := s.cache.Upsert(listing.FolderID, listing.ID, listing.VersionFolderID, listing.IsListed); err != nil {
		return err
	}
	if listing.EditURL != "" {
		s.cache.SetEditURL(listing.FolderID, listing.EditURL)
	}
	return nil
}

func (s *Syncer) notifyChanged(op, folderID string) {
	s.events.Publish(events.Event{
		Type:      events.EventCacheChanged,
		FolderID:  folderID,
		Operation: op,
	})
}

func (s *Syncer) reportError(op, folderID string, resp marketplace.Response) {
	metrics.RecordReconcile(op, marketplace.Classify(resp.Status).String())
	logging.Warn("remote operation failed",
		zap.String("operation", op),
		zap.String("folder", folderID),
		zap.Int("status", resp.Status))
	s.events.Publish(events.Event{
		Type:      events.EventErrorReport,
		FolderID:  folderID,
		Operation: op,
		Code:      resp.Status,
		Detail:    resp.Detail,
	})
}

// reportTransport surfaces a connection-level failure. There is no
// server status code, so it is reported as site-down: same outcome
// class, same caller-may-retry contract.
func (s *Syncer) reportTransport(op, folderID string, err error) {
	metrics.RecordReconcile(op, "transport_error")
	logging.Error("remote call failed", zap.String("operation", op), zap.String("folder", folderID), zap.Error(err))
	s.events.Publish(events.Event{
		Type:      events.EventErrorReport,
		FolderID:  folderID,
		Operation: op,
		Code:      marketplace.StatusSiteDown,
		Detail:    map[string]any{"error": err.Error()},
	})
}

// firstListing extracts the first listing for folderID from a response,
// falling back to the first listing of any folder, then to a zero value.
func firstListing(resp marketplace.Response, folderID string) marketplace.Listing {
	for _, listing := range resp.Listings {
		if listing.FolderID == folderID {
			return listing
		}
	}
	if len(resp.Listings) > 0 {
		return resp.Listings[0]
	}
	return marketplace.Listing{}
}
