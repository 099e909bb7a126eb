package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"storefront/metrics"
)

const (
	cookieMaxAge    = 60 * 60 * 48
	cookieSessionID = "shop_session-id"
	headerSessionID = "X-Session-ID"
)

type ctxKeySessionID struct{}
type ctxKeyLog struct{}
type ctxKeyRequestID struct{}

type responseRecorder struct {
	b      int
	status int
	w      http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header { return r.w.Header() }

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.w.Write(p)
	r.b += n
	return n, err
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.w.WriteHeader(statusCode)
}

// logHandler attaches a request-scoped logger and records request metrics.
func (h *Handler) logHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		requestID := uuid.New().String()
		ctx = context.WithValue(ctx, ctxKeyRequestID{}, requestID)

		rr := &responseRecorder{w: w}
		log := h.log.WithFields(logrus.Fields{
			"http.req.path":   r.URL.Path,
			"http.req.method": r.Method,
			"http.req.id":     requestID,
		})
		if v, ok := ctx.Value(ctxKeySessionID{}).(string); ok {
			log = log.WithField("session", v)
		}
		log.Debug("request started")
		defer func() {
			if rr.status == 0 {
				rr.status = http.StatusOK
			}
			elapsed := time.Since(start)
			log.WithFields(logrus.Fields{
				"http.resp.took_ms": int64(elapsed / time.Millisecond),
				"http.resp.status":  rr.status,
				"http.resp.bytes":   rr.b,
			}).Debug("request complete")
			metrics.RecordHTTPRequest(r.Method, routeName(r), rr.status, elapsed)
		}()

		ctx = context.WithValue(ctx, ctxKeyLog{}, log)
		next.ServeHTTP(rr, r.WithContext(ctx))
	})
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ensureSessionID reuses the caller's session id from the header or cookie,
// or issues a new one as a cookie. Ids that are not UUIDs are ignored.
func ensureSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := parseSessionID(r.Header.Get(headerSessionID))
		if !ok {
			if c, err := r.Cookie(cookieSessionID); err == nil {
				sessionID, ok = parseSessionID(c.Value)
			}
		}
		if !ok {
			sessionID = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     cookieSessionID,
				Value:    sessionID,
				MaxAge:   cookieMaxAge,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), ctxKeySessionID{}, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseSessionID returns v in canonical UUID form.
func parseSessionID(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func sessionID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeySessionID{}).(string)
	return v
}

func requestLog(r *http.Request) logrus.FieldLogger {
	if l, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return l
	}
	return logrus.StandardLogger()
}
