package taskname

const (
	// Scheduled jobs
	CaseGenerate       = "case:generate"
	CaseSweep          = "case:sweep"
	SettlementMonitor  = "settlement:monitor"
	LeaderboardRefresh = "leaderboard:refresh"
	BadgeCheck         = "badge:check"

	// Queue tasks
	JobRun        = "job:run"
	CaseArchive   = "case:archive"
	CaseModerate  = "case:moderate"
	CaseReconcile = "case:reconcile"
)

// Scheduled lists the jobs that may be triggered manually.
var Scheduled = []string{
	CaseGenerate,
	CaseSweep,
	SettlementMonitor,
	LeaderboardRefresh,
	BadgeCheck,
}

func IsScheduled(name string) bool {
	for _, n := range Scheduled {
		if n == name {
			return true
		}
	}
	return false
}
