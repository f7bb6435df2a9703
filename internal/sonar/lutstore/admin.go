package lutstore

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the store's debug endpoints under /debug/:
// a tailsql console on the LUT database, a JSON listing and a prune action.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Sonar LUT cache",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("luts", "Stored sonar LUTs (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.List()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list LUTs: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.Printf("failed to encode LUT list: %v", err)
		}
	}))

	debug.Handle("luts/prune", "Drop all but the most recently used LUTs (?keep=N, POST)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		keep := 1
		if v := r.URL.Query().Get("keep"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "keep must be a non-negative integer", http.StatusBadRequest)
				return
			}
			keep = n
		}
		removed, err := s.Prune(keep)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"removed": removed})
	}))
}
