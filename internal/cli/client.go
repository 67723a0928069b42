package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID            string         `json:"id"`
	OrgID         string         `json:"org_id"`
	AgentID       string         `json:"agent_id"`
	Name          string         `json:"name,omitempty"`
	Frequency     string         `json:"frequency"`
	TimeOfDay     string         `json:"time_of_day,omitempty"`
	DayOfWeek     int            `json:"day_of_week,omitempty"`
	DayOfMonth    int            `json:"day_of_month,omitempty"`
	OneTimeAt     string         `json:"one_time_at,omitempty"`
	Action        string         `json:"action"`
	Params        map[string]any `json:"params,omitempty"`
	ThresholdDays int            `json:"threshold_days,omitempty"`
	LastEventAt   string         `json:"last_event_at,omitempty"`
	IsActive      bool           `json:"is_active"`
	LastRunAt     string         `json:"last_run_at,omitempty"`
	NextRunAt     string         `json:"next_run_at,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// RunResponse — итог ручного запуска.
type RunResponse struct {
	ScheduleID string            `json:"schedule_id"`
	Outcome    string            `json:"outcome"`
	DidWork    bool              `json:"did_work"`
	Error      string            `json:"error,omitempty"`
	Schedule   *ScheduleResponse `json:"schedule,omitempty"`
}

// PassResponse — итог catch-up.
type PassResponse struct {
	Due         int    `json:"due"`
	Executed    int    `json:"executed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Abandoned   int    `json:"abandoned"`
	Deferred    int    `json:"deferred"`
	Rescheduled int    `json:"rescheduled"`
	Timestamp   string `json:"timestamp"`
}

// TriggerResponse — ответ webhook.
type TriggerResponse struct {
	ExecutedCount int    `json:"executed_count"`
	Timestamp     string `json:"timestamp"`
}

// --- Request types ---

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name          string         `json:"name,omitempty"`
	Frequency     string         `json:"frequency"`
	TimeOfDay     string         `json:"time_of_day,omitempty"`
	DayOfWeek     int            `json:"day_of_week,omitempty"`
	DayOfMonth    int            `json:"day_of_month,omitempty"`
	OneTimeAt     *time.Time     `json:"one_time_at,omitempty"`
	Action        string         `json:"action"`
	Params        map[string]any `json:"params,omitempty"`
	ThresholdDays int            `json:"threshold_days,omitempty"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Name          *string         `json:"name,omitempty"`
	Frequency     *string         `json:"frequency,omitempty"`
	TimeOfDay     *string         `json:"time_of_day,omitempty"`
	DayOfWeek     *int            `json:"day_of_week,omitempty"`
	DayOfMonth    *int            `json:"day_of_month,omitempty"`
	OneTimeAt     *time.Time      `json:"one_time_at,omitempty"`
	Params        *map[string]any `json:"params,omitempty"`
	ThresholdDays *int            `json:"threshold_days,omitempty"`
}

// ListSchedulesOpts — параметры фильтрации schedules.
type ListSchedulesOpts struct {
	OrgID   string
	AgentID string
	Active  *bool
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Herald API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// catch-up выполняет действия синхронно
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Schedules ---

// ListSchedules возвращает schedules с фильтрацией.
func (c *Client) ListSchedules(opts ListSchedulesOpts) ([]ScheduleResponse, error) {
	params := url.Values{}
	if opts.OrgID != "" {
		params.Set("org_id", opts.OrgID)
	}
	if opts.AgentID != "" {
		params.Set("agent_id", opts.AgentID)
	}
	if opts.Active != nil {
		params.Set("active", strconv.FormatBool(*opts.Active))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для агента.
func (c *Client) CreateSchedule(agentID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/agents/"+agentID+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// SetScheduleActive включает или выключает schedule.
func (c *Client) SetScheduleActive(id string, active bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"is_active": active}
	err := c.put("/api/v1/schedules/"+id+"/active", body, &schedule)
	return &schedule, err
}

// RunSchedule выполняет schedule немедленно.
func (c *Client) RunSchedule(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/schedules/"+id+"/run", nil, &run)
	return &run, err
}

// CatchUp выполняет schedules с пропущенным окном.
func (c *Client) CatchUp() (*PassResponse, error) {
	var pass PassResponse
	err := c.post("/api/v1/schedules/catch-up", nil, &pass)
	return &pass, err
}

// Trigger вызывает webhook. Ответ webhook не обёрнут в data.
func (c *Client) Trigger(key string) (*TriggerResponse, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/webhook/trigger-schedules", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var tr TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &tr, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
