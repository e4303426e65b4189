package sessions

import (
	"encoding/json"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicSessionCompleted carries one Event per terminal session run.
const TopicSessionCompleted = "sessions.completed"

// Event describes a session reaching a terminal status. Subscribers such as
// catalog or lookup refreshers consume these; the engine itself never
// touches unrelated aggregates.
type Event struct {
	SessionID   uint   `json:"session_id"`
	Kind        string `json:"kind"`
	SubjectKind string `json:"subject_kind"`
	SubjectID   uint   `json:"subject_id"`
	NewStatus   string `json:"new_status"`
}

// Notifier receives terminal session events.
type Notifier interface {
	SessionCompleted(ev Event)
}

// NewBus builds the in-process pub/sub the engine publishes on.
func NewBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
}

// WatermillNotifier publishes session events onto a watermill publisher.
type WatermillNotifier struct {
	pub message.Publisher
}

func NewWatermillNotifier(pub message.Publisher) *WatermillNotifier {
	return &WatermillNotifier{pub: pub}
}

func (n *WatermillNotifier) SessionCompleted(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("encode session event: %v", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := n.pub.Publish(TopicSessionCompleted, msg); err != nil {
		log.Printf("publish session event: %v", err)
	}
}
