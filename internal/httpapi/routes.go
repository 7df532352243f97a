package httpapi

import "github.com/gorilla/mux"

// registerRoutes wires every HTTP Surface operation onto r.
func registerRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	r.HandleFunc("/taglist", s.handleTaglist).Methods("GET")
	r.HandleFunc("/fetch_data", s.handleFetchData).Methods("POST")
	r.HandleFunc("/build_working_table", s.handleBuildWorkingTable).Methods("POST")

	r.HandleFunc("/site_settings", s.handleSiteSettings).Methods("GET", "POST")
	r.HandleFunc("/tag_settings", s.handleTagSettings).Methods("GET", "POST")

	r.HandleFunc("/clear_cache", s.handleClearCache).Methods("POST")
	r.HandleFunc("/shutdown", s.handleShutdown).Methods("POST")
	r.HandleFunc("/restart", s.handleRestart).Methods("POST")
	r.HandleFunc("/log_event", s.handleLogEvent).Methods("POST")

	r.HandleFunc("/ws", s.handleWebSocket)
}
