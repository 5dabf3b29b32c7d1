package events

// Topic names produced and consumed by the gateway.
const (
	TopicUserCreated = "user.created"
	TopicUserUpdated = "user.updated"
	TopicUserDeleted = "user.deleted"
	TopicAuthAttempt = "auth.attempt"
	TopicAuthSuccess = "auth.success"
	TopicAuthFailed  = "auth.failed"
)

var knownTopics = []string{
	TopicUserCreated,
	TopicUserUpdated,
	TopicUserDeleted,
	TopicAuthAttempt,
	TopicAuthSuccess,
	TopicAuthFailed,
}

// Topics returns every known topic name.
func Topics() []string {
	out := make([]string, len(knownTopics))
	copy(out, knownTopics)
	return out
}

// IsKnownTopic reports whether topic is one of the gateway's topics.
func IsKnownTopic(topic string) bool {
	for _, t := range knownTopics {
		if t == topic {
			return true
		}
	}
	return false
}
