package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pensionportal/recovery"
)

type SMSConfig struct {
	URL     string
	Token   string
	Sender  string
	Timeout time.Duration
}

// SMSGateway posts codes as JSON to a text-message gateway:
//
//	{"to": "+15550100", "from": "PENSIONS", "message": "..."}
//
// Any 2xx response counts as accepted.
type SMSGateway struct {
	cfg    SMSConfig
	client *http.Client
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func NewSMSGateway(cfg SMSConfig, client *http.Client) (*SMSGateway, error) {
	if cfg.URL == "" {
		return nil, errors.New("sms gateway requires a url")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &SMSGateway{cfg: cfg, client: client}, nil
}

func (g *SMSGateway) Deliver(ctx context.Context, d recovery.Delivery) error {
	if d.Method != recovery.MethodSMS {
		return fmt.Errorf("sms gateway cannot deliver %q", d.Method)
	}

	msg, err := render(smsBody, d.Code, d.ValidFor)
	if err != nil {
		return fmt.Errorf("render sms: %w", err)
	}

	payload, err := json.Marshal(smsRequest{To: d.Destination, From: g.cfg.Sender, Message: msg})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
