package mqtt

// Topic scheme:
//
//	garminapi/system/status    retained service availability (online/offline)
//	garminapi/event/activity   one message per newly discovered activity
//	garminapi/event/sync       one message per completed sync run
const (
	topicPrefix = "garminapi"

	TopicSystemStatus  = topicPrefix + "/system/status"
	TopicActivityEvent = topicPrefix + "/event/activity"
	TopicSyncEvent     = topicPrefix + "/event/sync"
)
