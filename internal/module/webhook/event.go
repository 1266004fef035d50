package webhook

import (
	"encoding/json"

	"github.com/clickcart/server/internal/module/paypal"
)

// Kind is the recognized class of a webhook event. Anything the server
// does not act on explicitly is KindUnrecognized and acknowledged as-is.
type Kind string

const (
	KindCaptureCompleted Kind = "PAYMENT.CAPTURE.COMPLETED"
	KindCaptureDenied    Kind = "PAYMENT.CAPTURE.DENIED"
	KindCaptureRefunded  Kind = "PAYMENT.CAPTURE.REFUNDED"
	KindCaptureReversed  Kind = "PAYMENT.CAPTURE.REVERSED"
	KindCapturePending   Kind = "PAYMENT.CAPTURE.PENDING"
	KindOrderApproved    Kind = "CHECKOUT.ORDER.APPROVED"
	KindOrderCompleted   Kind = "CHECKOUT.ORDER.COMPLETED"
	KindUnrecognized     Kind = ""
)

// Classify maps a raw event type onto a handled kind.
func Classify(eventType string) Kind {
	switch Kind(eventType) {
	case KindCaptureCompleted, KindCaptureDenied, KindCaptureRefunded,
		KindCaptureReversed, KindCapturePending,
		KindOrderApproved, KindOrderCompleted:
		return Kind(eventType)
	}
	return KindUnrecognized
}

// captureResource is the capture payload carried by PAYMENT.CAPTURE.*
// events. The provider order id rides in supplementary data.
type captureResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// orderResource is the payload of CHECKOUT.ORDER.* events, where the
// resource id is the provider order id itself.
type orderResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// providerOrderID extracts the provider order id from an event, or ""
// when the event does not reference one.
func providerOrderID(kind Kind, evt *paypal.WebhookEvent) string {
	switch kind {
	case KindCaptureCompleted, KindCaptureDenied, KindCaptureRefunded,
		KindCaptureReversed, KindCapturePending:
		var res captureResource
		if err := json.Unmarshal(evt.Resource, &res); err != nil {
			return ""
		}
		return res.SupplementaryData.RelatedIDs.OrderID
	case KindOrderApproved, KindOrderCompleted:
		var res orderResource
		if err := json.Unmarshal(evt.Resource, &res); err != nil {
			return ""
		}
		return res.ID
	}
	return ""
}
