package server

import (
	"log"

	"github.com/drivelane/convo/internal/database"
)

// AccessPolicy answers whether a user may receive events for a
// conversation. The gateway consults it before room joins, typing
// relays and read-receipt relays; both "not found" and "not a
// participant" degrade to a silent deny, as do repository errors.
type AccessPolicy struct {
	db  database.ConversationRepository
	log *log.Logger
}

func NewAccessPolicy(db database.ConversationRepository, logger *log.Logger) *AccessPolicy {
	return &AccessPolicy{db: db, log: logger}
}

func (p *AccessPolicy) CanAccess(conversationId, userId string) bool {
	ok, err := p.db.IsParticipant(conversationId, userId)
	if err != nil {
		p.log.Printf("access check for conversation %q: %v", conversationId, err)
		return false
	}

	return ok
}
