// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"event-registration-system/models"
	"event-registration-system/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RemoteProfile is one entry of the profile service's change feed.
type RemoteProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName prefers the real name over the username.
func (p RemoteProfile) DisplayName() string {
	name := ""
	if p.FirstName != nil {
		name = *p.FirstName
	}
	if p.LastName != nil && *p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *p.LastName
	}
	if name == "" {
		return p.Username
	}
	return utils.NormalizeName(name)
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// UserStore persists mirrored profiles.
type UserStore interface {
	UpsertUsers(ctx context.Context, users []models.User) (int, error)
}

// UserSyncWorker mirrors names and emails from the profile service into users,
// so exports and gateway payer details stay current between logins.
type UserSyncWorker struct {
	db           *gorm.DB
	store        UserStore
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewUserSyncWorker(db *gorm.DB, store UserStore, baseURL, serviceToken string) *UserSyncWorker {
	return &UserSyncWorker{
		db:           db,
		store:        store,
		interval:     1 * time.Minute,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Info().Str("base_url", w.baseURL).Msg("🔁 [SYNC] starting user sync worker")
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	if _, err := w.syncBatch(ctx, time.Unix(0, 0)); err != nil {
		log.Warn().Err(err).Msg("⚠️ [SYNC] initial sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.syncBatch(ctx, w.lastSyncTime()); err != nil {
				log.Error().Err(err).Msg("❌ [SYNC] batch failed")
			}
		case <-ctx.Done():
			log.Info().Msg("⏹️ [SYNC] user sync worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest mirrored update, or the epoch for an empty table.
func (w *UserSyncWorker) lastSyncTime() time.Time {
	var latest models.User
	err := w.db.Select("updated_at").Order("updated_at DESC").Limit(1).Find(&latest).Error
	if err != nil || latest.UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return latest.UpdatedAt
}

func (w *UserSyncWorker) syncBatch(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid user sync URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("user sync request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("user sync returned %d: %s", resp.StatusCode, string(body))
	}

	var payload profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode user sync response: %w", err)
	}
	if len(payload.Users) == 0 {
		log.Debug().Time("since", since).Msg("[SYNC] no user changes")
		return 0, nil
	}

	users := make([]models.User, 0, len(payload.Users))
	for _, p := range payload.Users {
		u := models.User{ID: p.ID, Name: p.DisplayName(), Email: p.Email}
		u.CreatedAt, u.UpdatedAt = p.CreatedAt, p.UpdatedAt
		users = append(users, u)
	}

	n, err := w.store.UpsertUsers(ctx, users)
	if err != nil {
		return n, fmt.Errorf("failed to upsert users: %w", err)
	}
	log.Info().Int("received", len(payload.Users)).Int("upserted", n).Msg("✅ [SYNC] users mirrored")
	return n, nil
}
