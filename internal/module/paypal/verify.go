package paypal

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Header names the provider attaches to every webhook delivery. All five
// must be present for a delivery to even be considered for verification.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
)

// VerifyWebhookSignature checks a webhook delivery against the provider's
// verification endpoint. Verification fails closed: missing headers,
// transport failures, and malformed responses all report false. The raw
// request body must be passed exactly as received.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, rawBody []byte) bool {
	req := verifySignatureRequest{
		TransmissionID:   headers.Get(HeaderTransmissionID),
		TransmissionTime: headers.Get(HeaderTransmissionTime),
		CertURL:          headers.Get(HeaderCertURL),
		AuthAlgo:         headers.Get(HeaderAuthAlgo),
		TransmissionSig:  headers.Get(HeaderTransmissionSig),
		WebhookID:        c.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(rawBody),
	}

	if req.TransmissionID == "" || req.TransmissionTime == "" || req.CertURL == "" ||
		req.AuthAlgo == "" || req.TransmissionSig == "" {
		c.logger.Warn("webhook delivery missing signature headers",
			zap.String("transmission_id", req.TransmissionID))
		return false
	}
	if req.WebhookID == "" {
		c.logger.Warn("webhook id not configured, rejecting delivery")
		return false
	}

	resp, err := c.authorizedJSON(ctx, "verify_webhook_signature", http.MethodPost, verifyPath, req)
	if err != nil {
		c.logger.Error("webhook signature verification call failed", zap.Error(err))
		return false
	}
	if !resp.ok() {
		c.logger.Error("webhook signature verification rejected",
			zap.Int("status", resp.StatusCode))
		return false
	}

	var result verifySignatureResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		c.logger.Error("malformed verification response", zap.Error(err))
		return false
	}

	if result.VerificationStatus != "SUCCESS" {
		c.logger.Warn("webhook signature verification failed",
			zap.String("status", result.VerificationStatus),
			zap.String("transmission_id", req.TransmissionID))
		return false
	}
	return true
}
