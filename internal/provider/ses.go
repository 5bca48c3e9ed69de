package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

const (
	sesDefaultEndpointFmt = "https://email.%s.amazonaws.com"
	sesSendPath           = "/v2/email/outbound-emails"
	sesAccountPath        = "/v2/email/account"
	sesSigningName        = "ses"
)

// SES implements the Provider interface for the AWS SES v2 API. Requests go
// through the shared HTTPClient, wrapped so each one is SigV4-signed.
type SES struct {
	region   string
	endpoint string
	client   HTTPClient
}

// NewSES creates an AWS SES provider. APIKey and SecretKey are the static
// access key pair used for signing.
func NewSES(cfg ProviderConfig, client HTTPClient) *SES {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(sesDefaultEndpointFmt, cfg.Region)
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.APIKey,
			SecretAccessKey: cfg.SecretKey,
			Source:          "mpmail config",
		}, nil
	})
	return &SES{
		region:   cfg.Region,
		endpoint: endpoint,
		client:   NewSigV4Client(client, creds, sesSigningName, cfg.Region),
	}
}

func (s *SES) GetName() string { return "ses" }

// Send delivers a message via the AWS SES v2 SendEmail API.
func (s *SES) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("ses: marshal request: %w", err)
	}

	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method:  http.MethodPost,
		URL:     s.endpoint + sesSendPath,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("ses: send request: %w", err)
	}

	if pe := ClassifyHTTPError("ses", resp.StatusCode, string(resp.Body)); pe != nil {
		return nil, pe
	}
	var sesResp sesResponse
	_ = json.Unmarshal(resp.Body, &sesResp)
	return &DeliveryResult{
		ProviderMessageID: sesResp.MessageID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata: map[string]string{
			"region":      s.region,
			"status_code": strconv.Itoa(resp.StatusCode),
		},
	}, nil
}

// HealthCheck verifies AWS SES connectivity by calling GetAccount.
func (s *SES) HealthCheck(ctx context.Context) error {
	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: http.MethodGet,
		URL:    s.endpoint + sesAccountPath,
	})
	if err != nil {
		return fmt.Errorf("ses: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ses: health check returned status %d", resp.StatusCode)
	}
	return nil
}

type sesPayload struct {
	FromEmailAddress string         `json:"FromEmailAddress"`
	Destination      sesDestination `json:"Destination"`
	Content          sesContent     `json:"Content"`
}

type sesDestination struct {
	ToAddresses  []string `json:"ToAddresses"`
	CcAddresses  []string `json:"CcAddresses,omitempty"`
	BccAddresses []string `json:"BccAddresses,omitempty"`
}

type sesContent struct {
	Simple sesSimpleContent `json:"Simple"`
}

type sesSimpleContent struct {
	Subject sesBodyPart `json:"Subject"`
	Body    sesBody     `json:"Body"`
}

type sesBody struct {
	Text sesBodyPart  `json:"Text"`
	HTML *sesBodyPart `json:"Html,omitempty"`
}

type sesBodyPart struct {
	Data    string `json:"Data"`
	Charset string `json:"Charset"`
}

type sesResponse struct {
	MessageID string `json:"MessageId"`
}

func (s *SES) buildPayload(msg *Message) sesPayload {
	body := sesBody{Text: sesBodyPart{Data: msg.Text, Charset: "UTF-8"}}
	if msg.HTML != "" {
		body.HTML = &sesBodyPart{Data: msg.HTML, Charset: "UTF-8"}
	}
	return sesPayload{
		FromEmailAddress: msg.FromHeader(),
		Destination: sesDestination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: sesContent{
			Simple: sesSimpleContent{
				Subject: sesBodyPart{Data: msg.Subject, Charset: "UTF-8"},
				Body:    body,
			},
		},
	}
}
