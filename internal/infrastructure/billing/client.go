// Package billing is the client for the invoicing system that owns customers and invoices.
package billing

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/httpjson"
)

type Client struct {
	http *httpjson.Client
}

func New(baseURL, apiKey string, requestsPerSecond float64, opts ...httpjson.Option) *Client {
	opts = append([]httpjson.Option{httpjson.WithRateLimit(requestsPerSecond, 1)}, opts...)
	return &Client{http: httpjson.New("billing", baseURL, apiKey, opts...)}
}

type customerPayload struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type customerList struct {
	Data []customerPayload `json:"data"`
}

type invoicePayload struct {
	ID          string `json:"id,omitempty"`
	CustomerID  string `json:"customer_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status,omitempty"`
}

// SearchCustomerByEmail returns nil, nil when no customer has the address.
func (c *Client) SearchCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.WrapError(domain.ErrValidation, "search customer", errors.New("email is required"))
	}

	var resp customerList
	if err := c.http.Get(ctx, "/customers", url.Values{"email": {email}}, &resp, "search_customer"); err != nil {
		return nil, err
	}
	for _, item := range resp.Data {
		if strings.EqualFold(item.Email, email) {
			return toCustomer(item), nil
		}
	}
	return nil, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "create customer", errors.New("email is required"))
	}

	var resp customerPayload
	req := customerPayload{Email: customer.Email, Name: customer.Name, Phone: customer.Phone}
	if err := c.http.PostJSON(ctx, "/customers", req, &resp, "create_customer"); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, domain.WrapError(domain.ErrInternal, "create customer", errors.New("response has no customer id"))
	}
	return toCustomer(resp), nil
}

func (c *Client) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.CustomerID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "create invoice", errors.New("customer id is required"))
	}

	var resp invoicePayload
	req := invoicePayload{
		CustomerID:  invoice.CustomerID,
		Description: invoice.Description,
		AmountCents: invoice.AmountCents,
		Currency:    invoice.Currency,
	}
	if err := c.http.PostJSON(ctx, "/invoices", req, &resp, "create_invoice"); err != nil {
		return nil, err
	}
	return &domain.Invoice{
		ID:          resp.ID,
		CustomerID:  resp.CustomerID,
		Description: resp.Description,
		AmountCents: resp.AmountCents,
		Currency:    resp.Currency,
		Status:      resp.Status,
	}, nil
}

func toCustomer(p customerPayload) *domain.Customer {
	return &domain.Customer{ID: p.ID, Email: p.Email, Name: p.Name, Phone: p.Phone}
}
