package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"patientregistry/internal/patient/metrics"
	"patientregistry/internal/patient/models"
	id "patientregistry/pkg/domain"
)

const patientKeyPrefix = "patient:id:"

// Backend is the store contract the cache decorates.
type Backend interface {
	FindAll(ctx context.Context) ([]*models.Patient, error)
	FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error)
	ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error)
	FindByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Patient, error)
	Save(ctx context.Context, patient *models.Patient) (*models.Patient, error)
	DeleteByID(ctx context.Context, patientID id.PatientID) error
}

// Cached is a Redis read-through cache in front of a Backend for FindByID.
// Phone lookups always go to the backend so uniqueness decisions never read
// stale data. Redis failures degrade to the backend.
type Cached struct {
	inner   Backend
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// CachedOption configures a Cached store.
type CachedOption func(*Cached)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

// NewCached wraps inner with a Redis cache whose entries expire after ttl.
func NewCached(inner Backend, client *redis.Client, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// cacheEntry keeps the timestamps the public JSON layout hides.
type cacheEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Cached) FindAll(ctx context.Context) ([]*models.Patient, error) {
	return c.inner.FindAll(ctx)
}

func (c *Cached) FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	key := patientKeyPrefix + patientID.String()
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cacheEntry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			c.observe("hit")
			return entry.toModel(), nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt patient cache entry", "key", key)
		c.observe("error")
	case errors.Is(err, redis.Nil):
		c.observe("miss")
	default:
		c.logger.WarnContext(ctx, "patient cache read failed", "key", key, "error", err)
		c.observe("error")
	}

	p, err := c.inner.FindByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, p)
	return p, nil
}

func (c *Cached) ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error) {
	return c.inner.ExistsByPhoneNumber(ctx, phoneNumber)
}

func (c *Cached) FindByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Patient, error) {
	return c.inner.FindByPhoneNumber(ctx, phoneNumber)
}

// Save writes through and refreshes the cache entry.
func (c *Cached) Save(ctx context.Context, patient *models.Patient) (*models.Patient, error) {
	if !patient.ID.IsZero() {
		c.invalidate(ctx, patient.ID)
	}
	saved, err := c.inner.Save(ctx, patient)
	if err != nil {
		return nil, err
	}
	c.put(ctx, saved)
	return saved, nil
}

func (c *Cached) DeleteByID(ctx context.Context, patientID id.PatientID) error {
	c.invalidate(ctx, patientID)
	if err := c.inner.DeleteByID(ctx, patientID); err != nil {
		return err
	}
	// a concurrent FindByID may have refilled the entry
	c.invalidate(ctx, patientID)
	return nil
}

// Health reports the backend's health; a Redis outage only degrades caching.
func (c *Cached) Health(ctx context.Context) error {
	if h, ok := c.inner.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

// put overwrites the entry with a record that was just written to the backend.
func (c *Cached) put(ctx context.Context, p *models.Patient) {
	raw, ok := encodeEntry(p)
	if !ok {
		return
	}
	if err := c.client.Set(ctx, patientKeyPrefix+p.ID.String(), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "patient cache write failed", "patient_id", p.ID, "error", err)
	}
}

// fill backfills a read miss. It never replaces an existing entry, so a read
// that raced a Save cannot overwrite the fresher record with the one it loaded.
func (c *Cached) fill(ctx context.Context, p *models.Patient) {
	raw, ok := encodeEntry(p)
	if !ok {
		return
	}
	if err := c.client.SetNX(ctx, patientKeyPrefix+p.ID.String(), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "patient cache fill failed", "patient_id", p.ID, "error", err)
	}
}

func encodeEntry(p *models.Patient) ([]byte, bool) {
	raw, err := json.Marshal(cacheEntry{
		ID:          p.ID.String(),
		Name:        p.Name,
		PhoneNumber: p.PhoneNumber,
		Email:       p.Email,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	})
	return raw, err == nil
}

func (c *Cached) invalidate(ctx context.Context, patientID id.PatientID) {
	if err := c.client.Del(ctx, patientKeyPrefix+patientID.String()).Err(); err != nil {
		c.logger.WarnContext(ctx, "patient cache invalidation failed", "patient_id", patientID, "error", err)
	}
}

func (c *Cached) observe(result string) {
	if c.metrics != nil {
		c.metrics.ObserveCacheLookup(result)
	}
}

func (e cacheEntry) toModel() *models.Patient {
	return &models.Patient{
		ID:          id.PatientID(e.ID),
		Name:        e.Name,
		PhoneNumber: e.PhoneNumber,
		Email:       e.Email,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

