package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// SigV4Client signs each request with AWS Signature Version 4 before handing
// it to the wrapped HTTPClient.
type SigV4Client struct {
	next    HTTPClient
	signer  *v4.Signer
	creds   aws.CredentialsProvider
	service string
	region  string
	now     func() time.Time
}

// NewSigV4Client wraps next with request signing for service in region.
func NewSigV4Client(next HTTPClient, creds aws.CredentialsProvider, service, region string) *SigV4Client {
	return &SigV4Client{
		next:    next,
		signer:  v4.NewSigner(),
		creds:   creds,
		service: service,
		region:  region,
		now:     time.Now,
	}
}

// Do signs req and forwards it. The signed headers replace req.Headers on a copy.
func (c *SigV4Client) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("sigv4: retrieve credentials: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("sigv4: build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	sum := sha256.Sum256(req.Body)
	if err := c.signer.SignHTTP(ctx, creds, httpReq, hex.EncodeToString(sum[:]), c.service, c.region, c.now()); err != nil {
		return nil, fmt.Errorf("sigv4: sign request: %w", err)
	}

	signed := &HTTPRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: make(map[string]string, len(httpReq.Header)),
		Body:    req.Body,
	}
	for k := range httpReq.Header {
		signed.Headers[k] = httpReq.Header.Get(k)
	}
	return c.next.Do(ctx, signed)
}
