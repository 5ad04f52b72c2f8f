package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zackyviriot/study-buddy-backend/pkg/clientip"
)

// History rate limit: per-IP token bucket on GET /api/messages. Generous
// enough for rapid room switching while blocking abuse; anonymous requests
// (which will 401 anyway) get a tighter budget.

const (
	historyAuthRPS    = 0.5 // 30/min
	historyAuthBurst  = 20
	historyAnonRPS    = 0.17 // ~10/min
	historyAnonBurst  = 5
	historyCleanupInt = 5 * time.Minute
	historyLimiterTTL = 30 * time.Minute
)

type historyLimiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

var (
	historyEntries    = make(map[string]*historyLimiterEntry)
	historyEntriesMu  sync.Mutex
	historyCleanupRun bool
)

func getHistoryLimiter(ip string, authenticated bool) *rate.Limiter {
	key := ip
	rps, burst := historyAnonRPS, historyAnonBurst
	if authenticated {
		key = "auth:" + ip
		rps, burst = historyAuthRPS, historyAuthBurst
	}

	historyEntriesMu.Lock()
	defer historyEntriesMu.Unlock()

	if !historyCleanupRun {
		historyCleanupRun = true
		go historyCleanupLoop()
	}

	entry, ok := historyEntries[key]
	if !ok {
		entry = &historyLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		historyEntries[key] = entry
	}
	entry.lastUse = time.Now()
	return entry.limiter
}

func historyCleanupLoop() {
	ticker := time.NewTicker(historyCleanupInt)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-historyLimiterTTL)
		historyEntriesMu.Lock()
		for key, entry := range historyEntries {
			if entry.lastUse.Before(cutoff) {
				delete(historyEntries, key)
			}
		}
		historyEntriesMu.Unlock()
	}
}

// HistoryRateLimit throttles the message history endpoint per IP.
func HistoryRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/api/messages") {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientip.RealClientIP(r)
		auth := ExtractBearerToken(r.Header.Get("Authorization")) != ""
		limiter := getHistoryLimiter(ip, auth)

		limit := historyAnonBurst
		if auth {
			limit = historyAuthBurst
		}

		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many history requests. Please slow down."}`))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		next.ServeHTTP(w, r)
	})
}
