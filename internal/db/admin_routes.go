package db

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/invertfield/internal/monitoring"
)

// AttachAdminRoutes mounts the tsweb debug index on mux with a tailsql
// console over the run store at /debug/tailsql/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://invertfield.db", db.DB, &tailsql.DBOptions{
		Label: "Inversion runs",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("runs", "Recent inversion runs", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runs, err := db.ListRuns(20)
		if err != nil {
			monitoring.Logf("debug runs: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%-24s\titerations=%d\tmean=%s\tmax=%s\n",
				run.RunID, run.Reason, run.Iterations, fmtNorm(run.MeanErrorNorm), fmtNorm(run.MaxErrorNorm))
		}
	}))
	return nil
}

func fmtNorm(p *float64) string {
	if p == nil {
		return "null"
	}
	return fmt.Sprintf("%.6g", *p)
}
