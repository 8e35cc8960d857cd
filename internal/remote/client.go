// Package remote is the HTTP client for the authoritative task service. It
// speaks the service's snake_case JSON wire format and converts to and from
// domain values at the boundary.
package remote

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
	"time"

	"tasksync/internal/model"
	"tasksync/internal/session"
)

// ErrNoSession is returned when a call is attempted without credentials.
var ErrNoSession = errors.New("remote: no active session")

// TaskPage is one page of the remote task listing.
type TaskPage struct {
	Count    int
	Next     *string
	Previous *string
	Results  []model.Task
}

// Client talks to the remote task service. Every call requires the bearer
// token supplied by the session store.
type Client struct {
	baseURL string
	http    *http.Client
	session session.Store
}

func NewClient(baseURL string, sess session.Store) *Client {
	return &Client{
		baseURL: trimSlash(baseURL),
		http:    &http.Client{Timeout: 15 * time.Second},
		session: sess,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// ── wire types ──

type repetitionWire struct {
	Frequency string  `json:"frequency"`
	Time      *string `json:"time"`
}

type taskBody struct {
	Title        string           `json:"title"`
	Categories   []int64          `json:"categories"`
	ReminderTime *int             `json:"reminder_time"`
	StartTime    string           `json:"start_time"`
	EndTime      *string          `json:"end_time"`
	Priority     string           `json:"priority"`
	Emoji        string           `json:"emoji"`
	Repetitions  []repetitionWire `json:"repetitions"`
}

type completionWire struct {
	ID             json.Number `json:"id"`
	CompletionTime time.Time   `json:"completion_time"`
	Date           string      `json:"date"`
}

type taskWire struct {
	ID           json.Number      `json:"id"`
	User         int64            `json:"user"`
	Title        string           `json:"title"`
	ReminderTime *int             `json:"reminder_time"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time"`
	Priority     string           `json:"priority"`
	Emoji        string           `json:"emoji"`
	Categories   []int64          `json:"categories"`
	Repetitions  []repetitionWire `json:"repetitions"`
	Completions  []completionWire `json:"completions"`
}

type pageWire struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []taskWire `json:"results"`
}

func encodeTask(task *model.Task) taskBody {
	body := taskBody{
		Title:        task.Title,
		Categories:   make([]int64, 0, len(task.Categories)),
		ReminderTime: task.ReminderOffset,
		StartTime:    task.StartTime.UTC().Format(time.RFC3339),
		Priority:     string(task.Priority),
		Emoji:        task.Emoji,
		Repetitions:  make([]repetitionWire, 0, len(task.Repetitions)),
	}
	if body.Priority == "" {
		body.Priority = string(model.PriorityNone)
	}
	if task.EndTime != nil {
		end := task.EndTime.UTC().Format(time.RFC3339)
		body.EndTime = &end
	}
	for _, c := range task.Categories {
		body.Categories = append(body.Categories, c.ID)
	}
	for _, rep := range task.Repetitions {
		body.Repetitions = append(body.Repetitions, repetitionWire{
			Frequency: string(rep.Frequency),
			Time:      rep.TimeOfDay,
		})
	}
	return body
}

// decodeTask maps a wire task into the domain. Category names are filled
// from the given lookup when available; the service only sends ids.
func decodeTask(w taskWire, categories map[int64]model.Category) model.Task {
	task := model.Task{
		ID:             w.ID.String(),
		UserID:         w.User,
		Title:          w.Title,
		ReminderOffset: w.ReminderTime,
		StartTime:      w.StartTime,
		EndTime:        w.EndTime,
		Priority:       model.Priority(w.Priority),
		Emoji:          w.Emoji,
	}
	for _, id := range w.Categories {
		if c, ok := categories[id]; ok {
			task.Categories = append(task.Categories, c)
		} else {
			task.Categories = append(task.Categories, model.Category{ID: id})
		}
	}
	for _, rep := range w.Repetitions {
		task.Repetitions = append(task.Repetitions, model.Repetition{
			Frequency: model.Frequency(rep.Frequency),
			TimeOfDay: rep.Time,
		})
	}
	for _, comp := range w.Completions {
		task.Completions = append(task.Completions, model.Completion{
			ID:             comp.ID.String(),
			TaskID:         task.ID,
			CompletionTime: comp.CompletionTime,
			Date:           comp.Date,
		})
	}
	return task
}

// ── calls ──

func (c *Client) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	var w taskWire
	if err := c.do(ctx, http.MethodPost, "/task/", encodeTask(task), &w); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	created := decodeTask(w, nil)
	return &created, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, task *model.Task) (*model.Task, error) {
	var w taskWire
	if err := c.do(ctx, http.MethodPut, "/task/"+url.PathEscape(id)+"/", encodeTask(task), &w); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	updated := decodeTask(w, nil)
	return &updated, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/task/"+url.PathEscape(id)+"/", nil, nil); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListTasks fetches one page of tasks, hydrating category names from the
// service's category listing the way the source app did.
func (c *Client) ListTasks(ctx context.Context, page, pageSize int) (TaskPage, error) {
	categories, err := c.ListCategories(ctx)
	if err != nil {
		return TaskPage{}, err
	}
	byID := make(map[int64]model.Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("ordering", "-start_time")

	var w pageWire
	if err := c.do(ctx, http.MethodGet, "/task/?"+query.Encode(), nil, &w); err != nil {
		return TaskPage{}, fmt.Errorf("list tasks: %w", err)
	}

	result := TaskPage{Count: w.Count, Next: w.Next, Previous: w.Previous}
	for _, wt := range w.Results {
		result.Results = append(result.Results, decodeTask(wt, byID))
	}
	return result, nil
}

func (c *Client) CompleteTask(ctx context.Context, id string, completionTime time.Time) (*model.Completion, error) {
	body := map[string]string{
		"completion_time": completionTime.UTC().Format(time.RFC3339),
	}
	var w struct {
		ID             json.Number `json:"id"`
		Task           json.Number `json:"task"`
		CompletionTime time.Time   `json:"completion_time"`
	}
	if err := c.do(ctx, http.MethodPost, "/task/"+url.PathEscape(id)+"/complete/", body, &w); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	return &model.Completion{
		ID:             w.ID.String(),
		TaskID:         w.Task.String(),
		CompletionTime: w.CompletionTime,
		Date:           model.DateOf(w.CompletionTime),
	}, nil
}

func (c *Client) UncompleteTask(ctx context.Context, id, date string) error {
	body := map[string]string{"date": date}
	if err := c.do(ctx, http.MethodPost, "/task/"+url.PathEscape(id)+"/uncomplete/", body, nil); err != nil {
		return fmt.Errorf("uncomplete task: %w", err)
	}
	return nil
}

func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var wire []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories/", nil, &wire); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	categories := make([]model.Category, 0, len(wire))
	for _, w := range wire {
		categories = append(categories, model.Category{ID: w.ID, Name: w.Name})
	}
	return categories, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	creds, ok := c.session.Credentials()
	if !ok {
		return ErrNoSession
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
