// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mission-ledger/services"

	"go.uber.org/zap"
)

// RemoteProfile is the part of the profile service response the ledger uses.
type RemoteProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the sync service response.
type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker keeps cached display names in line with the profile
// service. Profiles of users the ledger has never seen are skipped.
type ProfileSyncWorker struct {
	users        *services.UserService
	log          *zap.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
	done  chan struct{}
}

func NewProfileSyncWorker(users *services.UserService, log *zap.Logger, baseURL, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		users:        users,
		log:          log,
		interval:     1 * time.Minute,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		done: make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled. Done is closed once it exits.
func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting profile sync worker", zap.String("url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) Done() <-chan struct{} {
	return w.done
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	defer close(w.done)

	// Initial sync from the beginning of time
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial profile sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Warn("profile sync failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("profile sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches profile changes since the last successful sync and
// applies them. It returns how many display names changed.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	profiles, err := w.fetch(ctx, w.since)
	if err != nil {
		return 0, err
	}

	var updated, skipped int
	latest := w.since
	for _, p := range profiles {
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
		id, err := strconv.ParseInt(p.ExternalID, 10, 64)
		if err != nil || id == 0 {
			skipped++
			continue
		}
		changed, err := w.users.UpdateDisplayName(ctx, id, p.Username)
		if errors.Is(err, services.ErrUserNotFound) {
			skipped++
			continue
		}
		if err != nil {
			// Keep the cursor so the batch is retried next tick.
			return updated, fmt.Errorf("update display name for %d: %w", id, err)
		}
		if changed {
			updated++
		}
	}
	w.since = latest

	w.log.Debug("profile sync batch applied",
		zap.Int("received", len(profiles)),
		zap.Int("updated", updated),
		zap.Int("skipped", skipped),
		zap.Time("since", w.since),
	)
	return updated, nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to profile service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, body)
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return response.Users, nil
}
