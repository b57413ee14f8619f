package consumer

import (
	"encoding/json"
	"net/http"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// Subscription describes one pub/sub topic a consumer wants delivered
// over HTTP, in the shape the sidecar reads from GET /dapr/subscribe.
type Subscription struct {
	PubSubName string            `json:"pubsubname"`
	Topic      string            `json:"topic"`
	Route      string            `json:"route,omitempty"`
	Routes     *Routes           `json:"routes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Routes holds content-based routing rules for a subscription. Rules are
// evaluated in order; deliveries matching no rule go to Default, or are
// dropped by the sidecar when Default is empty.
type Routes struct {
	Rules   []RoutingRule `json:"rules,omitempty"`
	Default string        `json:"default,omitempty"`
}

// RoutingRule routes deliveries whose CloudEvent matches a CEL
// expression to a specific path.
type RoutingRule struct {
	Match string `json:"match"`
	Path  string `json:"path"`
}

// Endpoint pairs a subscription with the handler serving its route.
// The server aggregates endpoints from every enabled consumer.
type Endpoint struct {
	Subscription Subscription
	Route        string
	Handler      http.Handler
}

// Handler adapts an orchestrator to the sidecar's HTTP delivery
// contract: 200 acks, 204 acks a duplicate, 400 tells the broker the
// payload is malformed and must not be redelivered, 500 requests
// redelivery.
func Handler(o *Orchestrator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env models.EventEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			logger.L().Error("Rejecting undecodable delivery", "scope", o.Scope(), "error", err)
			writeResult(w, http.StatusBadRequest, Result{Status: StatusError, Message: "invalid JSON body"})
			return
		}

		res := o.Handle(r.Context(), env)
		switch res.Status {
		case StatusSuccess:
			writeResult(w, http.StatusOK, res)
		case StatusDuplicate:
			w.WriteHeader(http.StatusNoContent)
		default:
			if res.Retryable {
				writeResult(w, http.StatusInternalServerError, res)
			} else {
				writeResult(w, http.StatusBadRequest, res)
			}
		}
	})
}

func writeResult(w http.ResponseWriter, code int, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger.L().Error("Failed to encode delivery result", "error", err)
	}
}
