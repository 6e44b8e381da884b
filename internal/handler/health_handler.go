package handler

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout はreadinessチェック全体のタイムアウト。
const readinessTimeout = 3 * time.Second

// ReadinessChecker は依存するデータベースの疎通を確認する。database.Poolsが満たす。
type ReadinessChecker interface {
	Ping(ctx context.Context) (checks map[string]bool, ok bool)
}

// HealthHandler はliveness/readinessのHTTPハンドラー。
type HealthHandler struct {
	checker ReadinessChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Livez はプロセスが応答できることを返す。外部依存は確認しない。
// GET /livez
func (h *HealthHandler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "alive"})
}

// Readyz は全データベースに接続できる場合に200、いずれかに接続できない場合に503を返す。
// verboseが指定された場合はデータベースごとの結果を含める。
// GET /readyz?verbose
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks, ok := h.checker.Ping(ctx)

	resp := healthResponse{Status: "ready"}
	status := http.StatusOK
	if !ok {
		resp.Status = "not ready"
		status = http.StatusServiceUnavailable
	}

	if r.URL.Query().Has("verbose") {
		resp.Checks = make(map[string]string, len(checks))
		for name, healthy := range checks {
			if healthy {
				resp.Checks[name] = "ok"
			} else {
				resp.Checks[name] = "fail"
			}
		}
	}

	writeJSON(w, status, resp)
}
