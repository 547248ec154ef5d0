package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// GroupMembership checks whether a user belongs to the gating group.
type GroupMembership struct {
	api     API
	groupID int64
}

func NewGroupMembership(api API, groupID int64) *GroupMembership {
	return &GroupMembership{api: api, groupID: groupID}
}

func (g *GroupMembership) IsMember(ctx context.Context, userID int64) (bool, error) {
	member, err := g.api.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(g.groupID),
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %d: %w", userID, err)
	}
	return isMemberStatus(member.MemberStatus()), nil
}

func isMemberStatus(status string) bool {
	switch status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}

// Messenger sends plain text messages to users.
type Messenger struct {
	api API
}

func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) Send(ctx context.Context, userID int64, text string) error {
	if _, err := m.api.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	return nil
}
