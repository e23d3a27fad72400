package gateway

import "project_handoff/internal/entities"

// Publisher turns committed domain changes into hub publishes.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// OwnershipChanged goes to the user's room and to the worker.
func (p *Publisher) OwnershipChanged(state entities.OwnershipState) {
	ev := BotStatusChanged{OwnershipState: state}
	p.hub.Publish(state.UserID, ev)
	p.hub.PublishToServices(ev)
}

// AdminMessageCommitted shows the admin's message to the room and hands it to
// the worker for external delivery.
func (p *Publisher) AdminMessageCommitted(turn entities.Turn, ev entities.Event) {
	p.hub.Publish(turn.UserID, AdminMessage{UserID: turn.UserID, Message: ev, AdminID: ev.AdminID})
	p.hub.PublishToServices(SendMessageToUser{
		UserID:  turn.UserID,
		Message: ev.Text,
		TurnID:  turn.ID,
		EventID: ev.EventID,
		AdminID: ev.AdminID,
	})
}

// StatsChanged pushes the whole snapshot to every admin.
func (p *Publisher) StatsChanged(snap entities.StatsSnapshot) {
	p.hub.PublishToAdmins(StatsUpdate{StatsSnapshot: snap})
}
