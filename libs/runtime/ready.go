package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const checkTimeout = 2 * time.Second

// ReadyCheck is a named dependency probe consulted by /readyz. A service is
// ready only when every configured probe passes.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

func (rc ReadyCheck) run(ctx context.Context) error {
	if rc.Check == nil {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return rc.Check(probeCtx)
}

// NewBaseMuxWithReady returns a mux pre-wired with liveness (/healthz) and
// readiness (/readyz) endpoints. Liveness always answers ok; readiness
// reports every failing probe by name.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		var failed []string
		for _, rc := range checks {
			if err := rc.run(r.Context()); err != nil {
				name := rc.Name
				if name == "" {
					name = "dependency"
				}
				failed = append(failed, name+": "+err.Error())
			}
		}
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failed, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
