package subscription

import (
	"math/big"

	"github.com/google/uuid"
)

// NewSubscriberID returns a random subscriber id: the 128 bits of a version 4
// UUID rendered as a decimal integer. Collisions are not checked for.
func NewSubscriberID() string {
	u := uuid.New()
	return new(big.Int).SetBytes(u[:]).String()
}

// QueueName is the name of the queue that holds messages on topic for one
// subscriber. The same pair always maps to the same queue, which is what lets
// a reconnecting client pick up its backlog.
func QueueName(subscriberID, topic string) string {
	return subscriberID + "@" + topic
}
