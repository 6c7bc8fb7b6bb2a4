package feed

import (
	"encoding/json"
	"net/http"

	"launchfeed/internal/domain"
)

// tokensResponse is the wire shape served to feed consumers.
type tokensResponse struct {
	Loading bool                 `json:"loading"`
	Tokens  []domain.TokenRecord `json:"tokens"`
}

// TokensHandler serves the current collection as JSON.
func (s *Session) TokensHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tokens := s.Tokens()
		if tokens == nil {
			tokens = []domain.TokenRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(tokensResponse{
			Loading: s.Loading(),
			Tokens:  tokens,
		}); err != nil {
			s.logger.Printf("[api] encode tokens: %v", err)
		}
	})
}
