package httptransport

import "expvar"

var (
	metricAdminPauseTotal  = expvar.NewInt("admin_pause_total")
	metricAdminResumeTotal = expvar.NewInt("admin_resume_total")

	metricSaveTotal  = expvar.NewInt("admin_save_total")
	metricSaveErrors = expvar.NewInt("admin_save_errors_total")

	metricReloadTotal  = expvar.NewInt("catalog_reload_total")
	metricReloadErrors = expvar.NewInt("catalog_reload_errors_total")

	metricSessionCreateTotal  = expvar.NewInt("session_create_total")
	metricSessionCreateErrors = expvar.NewInt("session_create_errors_total")
	metricSessionCommandTotal = expvar.NewInt("session_command_total")
)
