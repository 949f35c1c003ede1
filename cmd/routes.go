package main

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (ac *appContext) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", ac.getHealth).Methods("GET")
	r.HandleFunc("/poolstats", ac.getPoolMetrics).Methods("GET")
	r.HandleFunc("/queries/slow", ac.getSlowQueries).Methods("GET")
	r.HandleFunc("/queries/failed", ac.getFailedQueries).Methods("GET")
	r.HandleFunc("/circuitbreaker/reset", ac.resetCircuitBreaker).Methods("POST")
	r.HandleFunc("/dashboard", ac.getDashboard).Methods("GET")
	r.HandleFunc("/alerts", ac.getActiveAlerts).Methods("GET")
	r.HandleFunc("/alerts/{id}/resolve", ac.resolveAlert).Methods("POST")
	return r
}

func (ac *appContext) getHealth(w http.ResponseWriter, r *http.Request) {
	ok := ac.Pool.CheckHealth(r.Context())
	status := http.StatusOK
	text := "ok"
	if !ok {
		status = http.StatusServiceUnavailable
		text = "unavailable"
	}
	err := ac.writeJSON(w, status, envelope{"status": text, "poolStatus": ac.Pool.Metrics().Status}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) getPoolMetrics(w http.ResponseWriter, _ *http.Request) {
	err := ac.writeJSON(w, http.StatusOK, envelope{"poolMetrics": ac.Pool.Metrics()}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) getSlowQueries(w http.ResponseWriter, r *http.Request) {
	threshold := queryFloat(r, "threshold", 1000)
	limit := queryInt(r, "limit", 10)
	err := ac.writeJSON(w, http.StatusOK,
		envelope{"slowQueries": ac.Pool.SlowQueries(threshold, limit)}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) getFailedQueries(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	err := ac.writeJSON(w, http.StatusOK,
		envelope{"failedQueries": ac.Pool.FailedQueries(limit)}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) resetCircuitBreaker(w http.ResponseWriter, _ *http.Request) {
	ac.Pool.ResetCircuitBreaker()
	err := ac.writeJSON(w, http.StatusOK, envelope{"status": "reset"}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) getDashboard(w http.ResponseWriter, r *http.Request) {
	if ac.Monitor == nil {
		ac.errorResponse(w, http.StatusServiceUnavailable, "monitoring is disabled")
		return
	}
	err := ac.writeJSON(w, http.StatusOK,
		envelope{"dashboard": ac.Monitor.Dashboard(r.Context())}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) getActiveAlerts(w http.ResponseWriter, _ *http.Request) {
	if ac.Monitor == nil {
		ac.errorResponse(w, http.StatusServiceUnavailable, "monitoring is disabled")
		return
	}
	err := ac.writeJSON(w, http.StatusOK, envelope{"alerts": ac.Monitor.ActiveAlerts()}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func (ac *appContext) resolveAlert(w http.ResponseWriter, r *http.Request) {
	if ac.Monitor == nil {
		ac.errorResponse(w, http.StatusServiceUnavailable, "monitoring is disabled")
		return
	}
	id := mux.Vars(r)["id"]
	if !ac.Monitor.ResolveAlert(id) {
		ac.errorResponse(w, http.StatusNotFound, "alert not found or already resolved")
		return
	}
	err := ac.writeJSON(w, http.StatusOK, envelope{"resolved": id}, nil)
	if err != nil {
		ac.logError(err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
