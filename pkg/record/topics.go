package record

// TopicKind is the closed set of bus topics the bridge understands.
// Adding a kind means extending the constants, topicNames and the
// classifier's switch; a kind missing from topicNames is never subscribed.
type TopicKind int

const (
	// KindUnknown is returned for any topic outside the subscription table.
	KindUnknown TopicKind = iota
	// KindData carries a frame to persist.
	KindData
	// KindDebug carries diagnostic information and is never persisted.
	KindDebug
)

// Topic names as published by the devices.
const (
	DataTopic  = "device/data"
	DebugTopic = "device/debug"
)

// SubscriptionQoS is the at-least-once delivery tier used for every topic.
const SubscriptionQoS byte = 1

var topicNames = map[TopicKind]string{
	KindData:  DataTopic,
	KindDebug: DebugTopic,
}

// Kinds returns every subscribable kind in a stable order.
func Kinds() []TopicKind {
	return []TopicKind{KindData, KindDebug}
}

// KindOf maps a raw topic string to its kind. Unrecognised topics yield KindUnknown.
func KindOf(topic string) TopicKind {
	for kind, name := range topicNames {
		if name == topic {
			return kind
		}
	}
	return KindUnknown
}

// Topic returns the bus topic name for the kind, or "" for KindUnknown.
func (k TopicKind) Topic() string {
	return topicNames[k]
}

// Persisted reports whether messages of this kind become Records.
func (k TopicKind) Persisted() bool {
	return k == KindData
}

func (k TopicKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Subscriptions returns the topic filter table handed to the bus, each at SubscriptionQoS.
func Subscriptions() map[string]byte {
	subs := make(map[string]byte, len(topicNames))
	for _, kind := range Kinds() {
		subs[kind.Topic()] = SubscriptionQoS
	}
	return subs
}

// TopicList returns the subscribed topic names in the order of Kinds.
func TopicList() []string {
	kinds := Kinds()
	topics := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		topics = append(topics, kind.Topic())
	}
	return topics
}
