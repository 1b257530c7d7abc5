package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter builds the API route table with panic recovery applied to
// every endpoint
func NewRouter(webhook *WebhookHandler, stats *StatsHandler, deadLetters *DeadLetterHandler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/webhooks/{platform}", webhook.HandleWebhook).Methods(http.MethodPost)

	r.HandleFunc("/stats/leads/counts", stats.HandleLeadCounts).Methods(http.MethodGet)
	r.HandleFunc("/stats/leads/recent", stats.HandleRecentLeads).Methods(http.MethodGet)
	r.HandleFunc("/stats/queue", stats.HandleQueueStats).Methods(http.MethodGet)
	r.HandleFunc("/health", stats.HandleHealth).Methods(http.MethodGet)

	r.HandleFunc("/admin/dead-letters", deadLetters.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/admin/dead-letters/{id}/retry", deadLetters.HandleRetry).Methods(http.MethodPost)

	recovery := NewRecoveryMiddleware()
	return recovery.Recover(r)
}
