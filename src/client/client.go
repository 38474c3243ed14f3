package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"olympia/src/models"
	"olympia/src/utils"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Outcome classifies a redemption call from the device's point of view.
type Outcome int

const (
	// Redeemed means this call checked the holder in.
	Redeemed Outcome = iota
	// AlreadyRedeemed means another call won; the holder is admitted.
	AlreadyRedeemed
	// Rejected is a definitive refusal (unknown code, not redeemable,
	// malformed). Retrying cannot succeed.
	Rejected
	// Transient covers everything without a definitive answer.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Redeemed:
		return "redeemed"
	case AlreadyRedeemed:
		return "already_redeemed"
	case Rejected:
		return "rejected"
	default:
		return "transient"
	}
}

// Resolved reports whether the attempt can leave the local queue.
func (o Outcome) Resolved() bool {
	return o != Transient
}

var ErrUnavailable = errors.New("redemption endpoint unavailable")

type Attempt struct {
	Code       string
	Photo      []byte
	CapturedAt *time.Time
	OperatorID uint
	EventID    *uint
}

type Result struct {
	Outcome        Outcome
	StatusCode     int
	Message        string
	CheckInTime    *time.Time
	PhotoRef       string
	WasOfflineSync bool
}

// RedemptionClient talks to the check-in API on behalf of a device.
type RedemptionClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewRedemptionClient(baseURL string, token string, hc *http.Client) *RedemptionClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &RedemptionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      hc,
	}
}

func (c *RedemptionClient) do(ctx context.Context, method string, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Add("Accept", "application/json")
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// Redeem submits one attempt. A non-nil error always comes with a Transient
// result; every other outcome is definitive.
func (c *RedemptionClient) Redeem(ctx context.Context, a Attempt) (*Result, error) {
	payload := map[string]any{
		"redemptionCode": a.Code,
	}
	if len(a.Photo) > 0 {
		payload["photoData"] = utils.EncodePhotoData(a.Photo)
	}
	if a.CapturedAt != nil {
		payload["offlineTimestamp"] = a.CapturedAt.UTC().Format(time.RFC3339Nano)
	}
	if a.OperatorID != 0 {
		payload["userId"] = a.OperatorID
	}
	if a.EventID != nil {
		payload["eventId"] = *a.EventID
	}

	status, body, err := c.do(ctx, http.MethodPost, "/api/v1/check-in", payload)
	if err != nil {
		return &Result{Outcome: Transient, StatusCode: status, Message: err.Error()}, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}
	res := &Result{StatusCode: status, Message: gjson.GetBytes(body, "error").String()}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		res.Outcome = Redeemed
		res.Message = gjson.GetBytes(body, "status").String()
		res.WasOfflineSync = gjson.GetBytes(body, "wasOfflineSync").Bool()
		res.CheckInTime = parseTime(gjson.GetBytes(body, "ticketPurchase.check_in_time"))
		res.PhotoRef = gjson.GetBytes(body, "ticketPurchase.check_in_photo").String()
	case status == http.StatusConflict:
		res.Outcome = AlreadyRedeemed
		res.CheckInTime = parseTime(gjson.GetBytes(body, "existingCheckIn.timestamp"))
		res.PhotoRef = gjson.GetBytes(body, "existingCheckIn.photo").String()
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		res.Outcome = Rejected
	default:
		res.Outcome = Transient
		return res, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	return res, nil
}

// Ping reports whether the API answers at all.
func (c *RedemptionClient) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	return nil
}

// Snapshot fetches the check-in list of an event in its cached form.
func (c *RedemptionClient) Snapshot(ctx context.Context, eventID uint) (*models.CachedEvent, []models.CachedTicket, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/events/%d/check-in-snapshot", eventID), nil)
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK {
		return nil, nil, fmt.Errorf("snapshot of event %d: status %d: %s", eventID, status, gjson.GetBytes(body, "error").String())
	}

	ev := gjson.GetBytes(body, "event")
	event := &models.CachedEvent{
		ID:       uint(ev.Get("id").Uint()),
		Title:    ev.Get("title").String(),
		Location: ev.Get("location").String(),
		Status:   ev.Get("status").String(),
	}
	if t := parseTime(ev.Get("starts_at")); t != nil {
		event.StartsAt = *t
	}

	var tickets []models.CachedTicket
	gjson.GetBytes(body, "tickets").ForEach(func(_, v gjson.Result) bool {
		tickets = append(tickets, models.CachedTicket{
			RedemptionCode: v.Get("redemptionCode").String(),
			PurchaseID:     uint(v.Get("purchaseId").Uint()),
			TicketID:       uint(v.Get("ticketId").Uint()),
			TicketName:     v.Get("ticketName").String(),
			EventID:        event.ID,
			Status:         v.Get("status").String(),
			IsCheckedIn:    v.Get("isCheckedIn").Bool(),
			CheckInTime:    parseTime(v.Get("checkInTime")),
		})
		return true
	})
	return event, tickets, nil
}

func parseTime(v gjson.Result) *time.Time {
	if !v.Exists() || v.String() == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String())
	if err != nil {
		return nil
	}
	return &t
}
