package rediskey

import "fmt"

// Key prefixes shared by every process touching redis.
const (
	JobLockPrefix     = "lock:job"
	LeaderboardPrefix = "leaderboard"
	SequencePrefix    = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildJobLockKey returns "lock:job:{jobName}"
func BuildJobLockKey(jobName string) string {
	return NamespaceKey(JobLockPrefix, jobName)
}

// BuildLeaderboardKey returns "leaderboard:{period}"
func BuildLeaderboardKey(period string) string {
	return NamespaceKey(LeaderboardPrefix, period)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return fmt.Sprintf("%s:%s:%s", SequencePrefix, prefix, day)
}
