package messaging

import "github.com/porteroai/portero/internal/conversation"

func notifyFixture() conversation.NotifyRequest {
	return conversation.NotifyRequest{
		ResidentName: "Deisy Colorado",
		Phone:        "3001112233",
		Apartment:    "15",
		VisitorName:  "Carlos Ruiz",
		Cedula:       "1094567890",
	}
}
