// Package calendar creates follow-up events in the team calendar service.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/httpjson"
)

type Client struct {
	http       *httpjson.Client
	calendarID string
}

func New(baseURL, apiKey, calendarID string, opts ...httpjson.Option) *Client {
	return &Client{
		http:       httpjson.New("calendar", baseURL, apiKey, opts...),
		calendarID: calendarID,
	}
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type createEventRequest struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

type createEventResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateEvent(ctx context.Context, event domain.CalendarEvent) (string, error) {
	if !event.End.After(event.Start) {
		return "", domain.WrapError(domain.ErrValidation, "create calendar event", errors.New("end must be after start"))
	}
	req := createEventRequest{
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Start:       eventTime{DateTime: event.Start.UTC().Format(time.RFC3339)},
		End:         eventTime{DateTime: event.End.UTC().Format(time.RFC3339)},
	}

	var resp createEventResponse
	if err := c.http.PostJSON(ctx, fmt.Sprintf("/calendars/%s/events", c.calendarID), req, &resp, "create_event"); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", domain.WrapError(domain.ErrInternal, "create calendar event", errors.New("response has no event id"))
	}
	return resp.ID, nil
}
