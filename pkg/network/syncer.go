package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/beacon/pkg/events"
	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrNoDomain is returned when no collector endpoint is configured
	ErrNoDomain = errors.New("no collector domain")

	// ErrHandshakeRequired is returned when uploading to a group whose domain is unknown
	ErrHandshakeRequired = errors.New("handshake required")
)

// Protocol headers
const (
	HeaderAccountID   = "X-WZRK-AID"
	HeaderToken       = "X-WZRK-TK"
	HeaderDomain      = "X-WZRK-RD"
	HeaderSpikyDomain = "X-WZRK-SPIKY-RD"
	HeaderMute        = "X-WZRK-MUTE"
)

const (
	DefaultBatchSize = 50
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 10 * time.Minute
)

// Config holds syncer configuration
type Config struct {
	Endpoint  string
	AccountID string
	Token     string
	DeviceID  string
	BatchSize int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Client    *http.Client
}

// MuteSetter receives the collector's mute instruction
type MuteSetter interface {
	SetMuted(muted bool)
}

// Syncer uploads queued events to the collector.
//
// Regular and variables events go to the domain returned by the handshake;
// push-viewed events go to the spiky domain when one is advertised. A
// successful batch is deleted from the store before the next one is read.
type Syncer struct {
	cfg    Config
	base   *url.URL
	store  storage.EventStore
	broker *events.Broker
	mute   MuteSetter
	logger zerolog.Logger

	mu          sync.Mutex
	domain      string
	spikyDomain string
	failures    int
}

// NewSyncer creates a syncer. broker and mute may be nil.
func NewSyncer(cfg Config, store storage.EventStore, broker *events.Broker, mute MuteSetter) (*Syncer, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoDomain
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("endpoint %q: %w", cfg.Endpoint, ErrNoDomain)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Syncer{
		cfg:    cfg,
		base:   base,
		store:  store,
		broker: broker,
		mute:   mute,
		logger: log.WithComponent("network"),
	}, nil
}

// NeedsHandshake reports whether the group's upload domain is still unknown
func (s *Syncer) NeedsHandshake(group types.EventGroup) bool {
	return s.domainFor(group) == ""
}

func (s *Syncer) domainFor(group types.EventGroup) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group == types.GroupPushViewed && s.spikyDomain != "" {
		return s.spikyDomain
	}
	return s.domain
}

// Handshake asks the collector which domains to upload to. A failed
// handshake is reported as a failed flush of group.
func (s *Syncer) Handshake(ctx context.Context, group types.EventGroup) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base.JoinPath("hello").String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create handshake request: %w", err)
	}
	s.setAuthHeaders(req)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		err = fmt.Errorf("handshake failed: %w", err)
		s.fail(group, err, nil)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = fmt.Errorf("handshake failed: HTTP %d", resp.StatusCode)
		s.fail(group, err, nil)
		return err
	}

	s.applyMute(resp.Header)

	domain := resp.Header.Get(HeaderDomain)
	if domain == "" {
		// no redirect: keep talking to the configured endpoint
		domain = s.base.Host
	}
	s.mu.Lock()
	s.domain = domain
	s.spikyDomain = resp.Header.Get(HeaderSpikyDomain)
	s.mu.Unlock()

	s.logger.Debug().
		Str("domain", domain).
		Str("spiky_domain", resp.Header.Get(HeaderSpikyDomain)).
		Msg("Handshake complete")
	return nil
}

// FlushFromStore uploads every queued event of group in batches
func (s *Syncer) FlushFromStore(ctx context.Context, group types.EventGroup) types.FlushResult {
	logger := log.WithGroup(s.logger, string(group))
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FlushDuration, string(group))

	domain := s.domainFor(group)
	if domain == "" {
		return s.fail(group, ErrHandshakeRequired, nil)
	}

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return s.fail(group, err, &sent)
		}

		batch, err := s.store.Read(group, s.cfg.BatchSize)
		if err != nil {
			return s.fail(group, fmt.Errorf("failed to read queue: %w", err), &sent)
		}
		if len(batch) == 0 {
			break
		}

		resp, err := s.post(ctx, domain, batch)
		if err != nil {
			return s.fail(group, err, &sent)
		}

		if err := s.store.Delete(group, batch[len(batch)-1].Key); err != nil {
			return s.fail(group, fmt.Errorf("failed to delete sent events: %w", err), &sent)
		}
		sent += len(batch)
		metrics.EventsSent.WithLabelValues(string(group)).Add(float64(len(batch)))
		logger.Debug().Int("events", len(batch)).Msg("Batch sent")

		if redirect := resp.Get(HeaderDomain); redirect != "" && redirect != domain {
			s.mu.Lock()
			s.domain = redirect
			s.mu.Unlock()
			domain = s.domainFor(group)
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()

	result := types.FlushResult{Group: group, Sent: sent}
	metrics.FlushTotal.WithLabelValues(string(group), "success").Inc()
	metrics.UpdateComponent(metrics.ComponentNetwork, true, "")
	s.publish(result)
	return result
}

func (s *Syncer) post(ctx context.Context, domain string, batch []types.StoredEvent) (http.Header, error) {
	body, err := s.encodeBatch(batch)
	if err != nil {
		return nil, err
	}

	target := s.uploadURL(domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	s.setAuthHeaders(req)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.applyMute(resp.Header)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upload failed: HTTP %d", resp.StatusCode)
	}
	return resp.Header, nil
}

// encodeBatch builds the request body: a meta header followed by the events
func (s *Syncer) encodeBatch(batch []types.StoredEvent) ([]byte, error) {
	meta := types.NewPayload().
		Set("type", "meta").
		Set("g", s.cfg.DeviceID).
		Set("id", s.cfg.AccountID).
		Set("tk", s.cfg.Token).
		Set("l_ts", time.Now().Unix())

	items := make([]json.RawMessage, 0, len(batch)+1)
	header, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch header: %w", err)
	}
	items = append(items, header)
	for _, ev := range batch {
		items = append(items, json.RawMessage(ev.Data))
	}

	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return body, nil
}

func (s *Syncer) uploadURL(domain string) string {
	u := url.URL{Scheme: s.base.Scheme, Host: domain, Path: "/a1"}
	if strings.Contains(domain, "://") {
		if parsed, err := url.Parse(domain); err == nil {
			u = *parsed.JoinPath("a1")
		}
	}
	q := u.Query()
	q.Set("os", "Go")
	q.Set("z", s.cfg.AccountID)
	q.Set("ts", strconv.FormatInt(time.Now().Unix(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Syncer) setAuthHeaders(req *http.Request) {
	req.Header.Set(HeaderAccountID, s.cfg.AccountID)
	req.Header.Set(HeaderToken, s.cfg.Token)
}

func (s *Syncer) applyMute(h http.Header) {
	v := h.Get(HeaderMute)
	if v == "" || s.mute == nil {
		return
	}
	muted := strings.EqualFold(v, "true")
	if muted {
		s.logger.Warn().Msg("Collector muted this client")
		if s.broker != nil {
			s.broker.Publish(&events.Event{Type: events.EventMuted, Message: "muted by collector"})
		}
	}
	s.mute.SetMuted(muted)
}

// fail records a failed attempt, publishes it and returns the result
func (s *Syncer) fail(group types.EventGroup, err error, sent *int) types.FlushResult {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	result := types.FlushResult{Group: group, Err: err, RetryDelay: s.RecommendedDelay()}
	if sent != nil {
		result.Sent = *sent
	}

	s.logger.Warn().
		Err(err).
		Str("group", string(group)).
		Int("consecutive_failures", failures).
		Dur("retry_in", result.RetryDelay).
		Msg("Flush failed")
	metrics.FlushTotal.WithLabelValues(string(group), "failure").Inc()
	metrics.UpdateComponent(metrics.ComponentNetwork, false, err.Error())

	s.publish(result)
	return result
}

func (s *Syncer) publish(result types.FlushResult) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(events.FlushEvent(result))
}

// RecommendedDelay is the base delay doubled per consecutive failure, capped at MaxDelay
func (s *Syncer) RecommendedDelay() time.Duration {
	s.mu.Lock()
	failures := s.failures
	s.mu.Unlock()

	delay := s.cfg.BaseDelay
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	return delay
}

// Failures returns the number of consecutive failed attempts
func (s *Syncer) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
