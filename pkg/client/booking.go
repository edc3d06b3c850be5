package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"exambook/pkg/model"
)

const requesterHeader = "X-Requester-ID"

// BookingClient talks to the booking API.
type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseUrl string) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *BookingClient) Create(intent model.BookingIntent) (*Response, error) {
	headers := map[string]string{requesterHeader: intent.RequesterID}
	return c.httpClient.POSTWithHeaders("/api/v1/bookings", intent, headers)
}

func (c *BookingClient) CreateRaw(rawBody []byte) (*Response, error) {
	return c.httpClient.POSTRaw("/api/v1/bookings", rawBody)
}

func (c *BookingClient) GetByID(id string) (*Response, error) {
	return c.httpClient.GET("/api/v1/bookings/id/" + url.PathEscape(id))
}

func (c *BookingClient) Cancel(id string) (*Response, error) {
	return c.httpClient.POST("/api/v1/bookings/id/"+url.PathEscape(id)+"/cancel", nil)
}

func (c *BookingClient) ListBySession(sessionID string) (*Response, error) {
	return c.httpClient.GET("/api/v1/sessions/" + url.PathEscape(sessionID) + "/bookings")
}

func (c *BookingClient) Capacity(sessionID string) (*Response, error) {
	return c.httpClient.GET("/api/v1/sessions/" + url.PathEscape(sessionID) + "/capacity")
}

func (c *BookingClient) ListByRequester(requesterID string) (*Response, error) {
	headers := map[string]string{requesterHeader: requesterID}
	return c.httpClient.GETWithHeaders("/api/v1/requesters/"+url.PathEscape(requesterID)+"/bookings", headers)
}

func (c *BookingClient) DecodeResult(resp *Response) (*model.BookingResult, error) {
	var wrapper struct {
		Data model.BookingResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode booking result:\n%s\n%w", string(resp.Body), err)
	}
	return &wrapper.Data, nil
}

func (c *BookingClient) DecodeBooking(resp *Response) (*model.Booking, error) {
	var wrapper struct {
		Data model.Booking `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode booking:\n%s\n%w", string(resp.Body), err)
	}
	return &wrapper.Data, nil
}

func (c *BookingClient) DecodeBookings(resp *Response) ([]*model.Booking, error) {
	var wrapper struct {
		Data []*model.Booking `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode booking list:\n%s\n%w", string(resp.Body), err)
	}
	return wrapper.Data, nil
}

func (c *BookingClient) DecodeCapacity(resp *Response) (*model.CapacitySnapshot, error) {
	var wrapper struct {
		Data model.CapacitySnapshot `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode capacity:\n%s\n%w", string(resp.Body), err)
	}
	return &wrapper.Data, nil
}

func (c *BookingClient) WaitForHealthy(maxWait time.Duration) error {
	return c.httpClient.WaitForHealthy(maxWait)
}
