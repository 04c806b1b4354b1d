package runtime

import (
	"net/http"

	"github.com/drblury/flowcore/internal/runtime/jsoncodec"
	"github.com/drblury/flowcore/internal/runtime/stats"
)

// StatusPath is where the status handler is mounted.
const StatusPath = "/flowcore/status"

// Status is the JSON document served on StatusPath.
type Status struct {
	Transports []string       `json:"transports"`
	Handlers   []*HandlerInfo `json:"handlers"`
	Components []string       `json:"components"`
	Statistics stats.Snapshot `json:"statistics"`
	PoolSize   int            `json:"pool_size"`
}

// Status returns the current registrations and statistics.
func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{
		Transports: make([]string, 0, len(s.transports)),
		Handlers:   append([]*HandlerInfo(nil), s.handlers...),
		Components: make([]string, 0, len(s.components)),
	}
	for name := range s.transports {
		st.Transports = append(st.Transports, name)
	}
	for _, c := range s.components {
		st.Components = append(st.Components, c.Name())
	}
	s.mu.Unlock()

	st.Statistics = s.metrics.Snapshot()
	st.PoolSize = s.pool.Size()
	return st
}

// StatusHandler serves Status as JSON.
func (s *Service) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := jsoncodec.Marshal(s.Status())
		if err != nil {
			s.Logger.Error("Failed to encode status", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}
