package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mopstar/mopstar-api/internal/contact"
	"github.com/mopstar/mopstar-api/internal/logging"
	"github.com/mopstar/mopstar-api/internal/provider"
	"github.com/mopstar/mopstar-api/internal/ratelimit"
)

const (
	msgContactSuccess     = "Thank you for contacting us! We will get back to you shortly."
	msgContactRateLimited = "Too many contact form submissions. Please try again later."
	msgInvalidBody        = "Invalid request body"
	msgContactHealthy     = "Contact service is running"
)

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var req contact.Request
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.Debug("invalid contact body", "error", err)
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.deps.Contact.Submit(r.Context(), clientIP(r), req)
	setRateLimitHeaders(w, res.Decision)

	var (
		verr  *contact.ValidationError
		rlErr *contact.RateLimitError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: msgContactSuccess})
	case errors.As(err, &rlErr):
		w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(rlErr.RetryAfter)))
		writeError(w, http.StatusTooManyRequests, msgContactRateLimited)
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, strings.Join(verr.Problems, ", "))
	case errors.Is(err, provider.ErrMisconfigured), errors.Is(err, provider.ErrAuth):
		writeError(w, http.StatusInternalServerError, fmt.Sprintf(
			"Email service temporarily unavailable. Please try again later or contact us at %s.",
			s.opts.FallbackContact))
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf(
			"Something went wrong. Please try again later or contact us at %s.",
			s.opts.FallbackContact))
	}
}

func (s *Server) handleContactHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Message:   msgContactHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// setRateLimitHeaders writes the IETF draft RateLimit-* headers when the
// limiter reported a policy.
func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(d.Reset)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// clientIP returns the host part of RemoteAddr. When the proxy is trusted,
// middleware.RealIP has already rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
