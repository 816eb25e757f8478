package cli

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/gridpulse/pkg/data"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func queryParamBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}

func stressAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := data.GetStressResults(r.Context(), db, &data.StressFilter{
			Region:  r.URL.Query().Get("region"),
			Flagged: queryParamBool(r, "flagged"),
			Limit:   queryParamInt(r, "limit", queryResultLimitDefault),
		})
		if err != nil {
			slog.Error("failed to get stress results", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying stress results")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func attributionAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := data.GetAttributionResults(r.Context(), db, r.URL.Query().Get("region"))
		if err != nil {
			slog.Error("failed to get attribution results", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying attribution results")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func runsAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := data.GetRuns(r.Context(), db, queryParamInt(r, "limit", runListLimitDefault))
		if err != nil {
			slog.Error("failed to get runs", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying runs")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
