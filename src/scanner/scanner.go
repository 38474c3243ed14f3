package scanner

import (
	"context"
	"errors"
	"log"
	"olympia/src/client"
	"olympia/src/models"
	"olympia/src/offline"
	"strings"
	"time"
)

type Redeemer interface {
	Redeem(ctx context.Context, a client.Attempt) (*client.Result, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, attempt *models.OfflineRedemptionAttempt) (uint, error)
}

// Connectivity is the device's current view of the network.
type Connectivity interface {
	Online() bool
	SetOnline(online bool)
}

type Result struct {
	Code string
	// Queued is set when the attempt was saved for sync instead of being
	// answered by the server.
	Queued  bool
	LocalID uint
	Outcome client.Outcome
	Server  *client.Result
	// Ticket is the cached snapshot of the code, when there is one.
	Ticket *models.CachedTicket
}

// Scanner is the capture flow of a check-in device.
type Scanner struct {
	api        Redeemer
	queue      Enqueuer
	cache      *offline.Cache
	conn       Connectivity
	operatorID uint
	eventID    *uint
	timeout    time.Duration
	now        func() time.Time
}

type Options struct {
	OperatorID uint
	EventID    uint
	Timeout    time.Duration
	Cache      *offline.Cache
}

func New(api Redeemer, queue Enqueuer, conn Connectivity, opts Options) *Scanner {
	s := &Scanner{
		api:        api,
		queue:      queue,
		cache:      opts.Cache,
		conn:       conn,
		operatorID: opts.OperatorID,
		timeout:    opts.Timeout,
		now:        time.Now,
	}
	if opts.EventID != 0 {
		id := opts.EventID
		s.eventID = &id
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	return s
}

// Scan redeems a code. Online scans go straight to the server; offline
// scans and scans without a definitive answer are queued locally.
func (s *Scanner) Scan(ctx context.Context, code string, photo []byte) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, offline.ErrEmptyCode
	}
	captured := s.now()
	res := &Result{Code: code, Ticket: s.cached(ctx, code)}

	if s.conn == nil || s.conn.Online() {
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		server, err := s.api.Redeem(reqCtx, client.Attempt{
			Code:       code,
			Photo:      photo,
			OperatorID: s.operatorID,
			EventID:    s.eventID,
		})
		cancel()
		if err == nil && server != nil && server.Outcome.Resolved() {
			res.Outcome = server.Outcome
			res.Server = server
			if server.Outcome != client.Rejected {
				s.markCheckedIn(ctx, code, server.CheckInTime)
			}
			return res, nil
		}
		if err != nil {
			log.Printf("[Scanner] %s saved for sync: %s\n", code, err.Error())
		}
		if errors.Is(err, client.ErrUnavailable) && s.conn != nil {
			s.conn.SetOnline(false)
		}
	}

	attempt := &models.OfflineRedemptionAttempt{
		RedemptionCode:       code,
		EvidencePhoto:        photo,
		CapturedAtClientTime: captured,
		OperatorUserID:       s.operatorID,
		EventID:              s.eventID,
	}
	id, err := s.queue.Enqueue(ctx, attempt)
	if err != nil {
		return nil, err
	}
	res.Queued = true
	res.LocalID = id
	res.Outcome = client.Transient
	return res, nil
}

func (s *Scanner) cached(ctx context.Context, code string) *models.CachedTicket {
	if s.cache == nil {
		return nil
	}
	t, err := s.cache.GetTicket(ctx, code)
	if err != nil {
		return nil
	}
	return t
}

func (s *Scanner) markCheckedIn(ctx context.Context, code string, at *time.Time) {
	if s.cache == nil {
		return
	}
	when := s.now()
	if at != nil {
		when = *at
	}
	if err := s.cache.MarkCheckedIn(ctx, code, when); err != nil {
		log.Printf("[Scanner] cache update failed for %s: %s\n", code, err.Error())
	}
}
