package citasapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"arvera/internal/booking"
	"arvera/internal/metrics"
)

// RemoteRejection is a non-success response from a collaborator API: the
// request arrived but the server refused it.
type RemoteRejection struct {
	StatusCode int
	Message    string
}

func (e *RemoteRejection) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api rejected request (http %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api rejected request (http %d)", e.StatusCode)
}

// Client talks to the booking API, the availability API, the update-signal
// endpoint and the change webhook.
type Client struct {
	baseURL        string
	apiKey         string
	apiExtra       string
	webhookURL     string
	checkUpdateURL string
	httpClient     *http.Client
	logger         *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
	limiter  *rate.Limiter
}

// NewClient constructs a client. webhookURL and checkUpdateURL may be empty
// when those collaborators are not configured.
func NewClient(baseURL, apiKey, apiExtra, webhookURL, checkUpdateURL string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		apiExtra:       apiExtra,
		webhookURL:     webhookURL,
		checkUpdateURL: checkUpdateURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		logger:         logger,
	}
}

// UseRedisCache enables a TTL-bound read cache for availability GETs.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit bounds the outbound request rate.
func (c *Client) UseRateLimit(perSecond float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// appointmentRecord is the wire shape of the booking API. Field naming is
// the API's, kept out of the core model.
type appointmentRecord struct {
	ID          string `json:"Id"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Nombre      string `json:"Nombre"`
	Telefono    string `json:"Telefono"`
	Email       string `json:"Email"`
	Servicio    string `json:"Servicio"`
	Matricula   string `json:"Matricula"`
	Modelo      string `json:"Modelo"`
	Notas       string `json:"Notas"`
	Estado      string `json:"Estado"`
	CancelToken string `json:"CancelToken"`
}

// ListAppointments fetches appointments overlapping the date range. Records
// without a parseable start time are skipped and logged, not fatal.
func (c *Client) ListAppointments(ctx context.Context, rangeStart, rangeEnd time.Time) ([]booking.Appointment, error) {
	endpoint := fmt.Sprintf("%s/citas?startDate=%s&endDate=%s",
		c.baseURL,
		url.QueryEscape(rangeStart.UTC().Format("2006-01-02")),
		url.QueryEscape(rangeEnd.UTC().Format("2006-01-02")))

	var records []appointmentRecord
	if err := c.doGet(ctx, endpoint, &records); err != nil {
		return nil, err
	}

	appointments := make([]booking.Appointment, 0, len(records))
	for _, rec := range records {
		appt, err := rec.toAppointment()
		if err != nil {
			metrics.IncSkippedRecord()
			c.logger.Warn().Err(err).Str("id", rec.ID).Msg("skipping malformed appointment record")
			continue
		}
		appointments = append(appointments, appt)
	}
	return appointments, nil
}

func (r appointmentRecord) toAppointment() (booking.Appointment, error) {
	if r.StartTime == "" {
		return booking.Appointment{}, fmt.Errorf("record has no start time")
	}
	start, err := time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("parse start time %q: %w", r.StartTime, err)
	}
	var end time.Time
	if r.EndTime != "" {
		end, err = time.Parse(time.RFC3339, r.EndTime)
		if err != nil {
			return booking.Appointment{}, fmt.Errorf("parse end time %q: %w", r.EndTime, err)
		}
	}
	return booking.Appointment{
		ID:           r.ID,
		Start:        start.UTC(),
		End:          end.UTC(),
		CustomerName: r.Nombre,
		Phone:        r.Telefono,
		Email:        r.Email,
		Service:      r.Servicio,
		PlateNumber:  r.Matricula,
		VehicleModel: r.Modelo,
		Notes:        r.Notas,
		Status:       r.Estado,
		CancelToken:  r.CancelToken,
		Origin:       booking.OriginRemote,
	}, nil
}

// CreateAppointment books a new appointment and returns the created record.
// A cancellation token is minted client-side so the confirmation message can
// carry a self-service cancel link even before the next sync.
func (c *Client) CreateAppointment(ctx context.Context, a booking.Appointment) (booking.Appointment, error) {
	cancelToken := a.CancelToken
	if cancelToken == "" {
		cancelToken = uuid.NewString()
	}
	body := map[string]string{
		"Nombre":      a.CustomerName,
		"Telefono":    a.Phone,
		"Email":       a.Email,
		"Servicio":    a.Service,
		"startTime":   a.Start.UTC().Format(time.RFC3339),
		"endTime":     a.End.UTC().Format(time.RFC3339),
		"Matricula":   a.PlateNumber,
		"Modelo":      a.VehicleModel,
		"Notas":       a.Notes,
		"CancelToken": cancelToken,
	}

	var rec appointmentRecord
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/citas", c.baseURL), body, &rec); err != nil {
		return booking.Appointment{}, err
	}
	created, err := rec.toAppointment()
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("created record: %w", err)
	}
	return created, nil
}

// UpdateAppointmentTimes moves an appointment to a new start/end.
func (c *Client) UpdateAppointmentTimes(ctx context.Context, id string, start, end time.Time) error {
	body := map[string]string{
		"startTime": start.UTC().Format(time.RFC3339),
		"endTime":   end.UTC().Format(time.RFC3339),
	}
	endpoint := fmt.Sprintf("%s/citas/%s", c.baseURL, url.PathEscape(id))
	return c.doJSON(ctx, http.MethodPut, endpoint, body, nil)
}

// DeleteAppointment removes an appointment.
func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/citas/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, nil)
}

// FreeSlotDescriptor is one free slot as reported by the availability API.
type FreeSlotDescriptor struct {
	Fecha     string    `json:"fecha"` // YYYY-MM-DD in the shop zone
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type freeSlotsResponse struct {
	Disponibles []FreeSlotDescriptor `json:"disponibles"`
	Total       int                  `json:"total"`
}

// ListFreeSlots queries the availability API for free slot descriptors.
// horarios is the comma-joined interval list ("08:30-12:15,15:45-18:00").
// Responses are cached in redis when a cache is configured.
func (c *Client) ListFreeSlots(ctx context.Context, rangeStart, rangeEnd time.Time, slotMinutes int, horarios, timezone string) ([]FreeSlotDescriptor, error) {
	startDate := rangeStart.Format("2006-01-02")
	endDate := rangeEnd.Format("2006-01-02")
	endpoint := fmt.Sprintf("%s/disponibles?startDate=%s&endDate=%s&duracion=%d&horarios=%s&timezone=%s",
		c.baseURL, startDate, endDate, slotMinutes, url.QueryEscape(horarios), url.QueryEscape(timezone))
	cacheKey := fmt.Sprintf("disponibles:%s:%s:%d", startDate, endDate, slotMinutes)

	var resp freeSlotsResponse
	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Disponibles, nil
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Disponibles, nil
}

// InvalidateFreeSlots drops all cached availability after a booking
// mutation changed it. Cached entries are keyed per queried range, so the
// whole prefix is flushed.
func (c *Client) InvalidateFreeSlots(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, "disponibles:*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("availability cache invalidation failed")
	}
}

type updateSignal struct {
	UpdatedAt string `json:"updatedAt"`
}

// CheckUpdate fetches the remote "last changed" token. The token is opaque:
// only compared, never parsed.
func (c *Client) CheckUpdate(ctx context.Context) (string, error) {
	if c.checkUpdateURL == "" {
		return "", fmt.Errorf("check-update endpoint not configured")
	}
	var sig updateSignal
	if err := c.doGet(ctx, c.checkUpdateURL, &sig); err != nil {
		return "", err
	}
	return sig.UpdatedAt, nil
}

// NotifyChange pings the change webhook after a successful mutation so
// other open calendars resync. Failures are logged, never propagated.
func (c *Client) NotifyChange(ctx context.Context) {
	if c.webhookURL == "" {
		return
	}
	body := map[string]string{
		"triggerEvent": "CITA_CHANGED",
		"createdAt":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.doJSON(ctx, http.MethodPost, c.webhookURL, body, nil); err != nil {
		c.logger.Warn().Err(err).Msg("change webhook notify failed")
	}
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteRejection{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
