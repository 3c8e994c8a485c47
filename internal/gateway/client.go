package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the provider's REST API. Authentication is HTTP basic
// with the server key as username and an empty password.
type HTTPClient struct {
	BaseURL   string
	ServerKey string
	Name      string
	HTTP      *http.Client
}

func NewHTTPClient(baseURL, serverKey, name string) *HTTPClient {
	return &HTTPClient{
		BaseURL:   baseURL,
		ServerKey: serverKey,
		Name:      name,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenRequestBody struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount string `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails []tokenItemBody `json:"item_details,omitempty"`
	CustomerDetails struct {
		FirstName string `json:"first_name,omitempty"`
		Phone     string `json:"phone,omitempty"`
	} `json:"customer_details"`
	Callbacks struct {
		Finish string `json:"finish,omitempty"`
	} `json:"callbacks"`
	Expiry struct {
		Unit     string `json:"unit"`
		Duration int    `json:"duration"`
	} `json:"expiry"`
}

type tokenItemBody struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type tokenResponseBody struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

func (c *HTTPClient) CreateToken(ctx context.Context, req TokenRequest) (*Token, error) {
	var body tokenRequestBody
	body.TransactionDetails.OrderID = req.OrderNumber
	body.TransactionDetails.GrossAmount = FormatGross(req.GrossCents)
	for _, it := range req.Items {
		body.ItemDetails = append(body.ItemDetails, tokenItemBody{
			ID:       it.ID,
			Name:     it.Name,
			Price:    FormatGross(it.PriceCents),
			Quantity: it.Quantity,
		})
	}
	body.CustomerDetails.FirstName = req.CustomerName
	body.CustomerDetails.Phone = req.CustomerPhone
	body.Callbacks.Finish = req.FinishURL
	body.Expiry.Unit = "minute"
	body.Expiry.Duration = int(req.Expiry.Minutes())

	var resp tokenResponseBody
	if err := c.do(ctx, http.MethodPost, "/snap/v1/transactions", body, &resp); err != nil {
		return nil, err
	}
	return &Token{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

type statusResponseBody struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

const providerTimeLayout = "2006-01-02 15:04:05"

func (c *HTTPClient) QueryStatus(ctx context.Context, orderNumber string) (*TransactionStatus, error) {
	var resp statusResponseBody
	if err := c.do(ctx, http.MethodGet, "/v2/"+orderNumber+"/status", nil, &resp); err != nil {
		return nil, err
	}

	st := &TransactionStatus{
		OrderNumber:   resp.OrderID,
		TransactionID: resp.TransactionID,
		Status:        resp.TransactionStatus,
		FraudFlag:     resp.FraudStatus,
		StatusCode:    resp.StatusCode,
		GrossCents:    ParseGrossCents(resp.GrossAmount),
	}
	if t, err := time.Parse(providerTimeLayout, resp.TransactionTime); err == nil {
		st.TransactionAt = t
	}
	if t, err := time.Parse(providerTimeLayout, resp.SettlementTime); err == nil {
		st.SettledAt = &t
	}
	return st, nil
}

func (c *HTTPClient) CancelTransaction(ctx context.Context, orderNumber string) error {
	return c.do(ctx, http.MethodPost, "/v2/"+orderNumber+"/cancel", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.ServerKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrTransactionNotFound
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s %s: %s", ErrUpstream, method, path, bytes.TrimSpace(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}
