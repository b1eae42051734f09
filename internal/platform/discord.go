package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Discord implements Gateway against one guild via the Discord REST API.
type Discord struct {
	session *discordgo.Session
	guildID string
}

func NewDiscord(session *discordgo.Session, guildID string) *Discord {
	return &Discord{session: session, guildID: guildID}
}

func (d *Discord) SendDirectMessage(ctx context.Context, memberID, content string) error {
	channel, err := d.session.UserChannelCreate(memberID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	_, err = d.session.ChannelMessageSend(channel.ID, content, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (d *Discord) PostToChannel(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (d *Discord) GetRole(ctx context.Context, name string) (*Role, error) {
	roles, err := d.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.Name == name {
			r := role
			return &r, nil
		}
	}
	return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
}

func (d *Discord) CreateRole(ctx context.Context, name string, color int) (*Role, error) {
	role, err := d.session.GuildRoleCreate(d.guildID, &discordgo.RoleParams{
		Name:  name,
		Color: &color,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	return &Role{ID: role.ID, Name: role.Name}, nil
}

func (d *Discord) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

func (d *Discord) AddRoleToMember(ctx context.Context, memberID, roleID string) error {
	return mapErr(d.session.GuildMemberRoleAdd(d.guildID, memberID, roleID, discordgo.WithContext(ctx)))
}

func (d *Discord) RemoveRoleFromMember(ctx context.Context, memberID, roleID string) error {
	return mapErr(d.session.GuildMemberRoleRemove(d.guildID, memberID, roleID, discordgo.WithContext(ctx)))
}

func (d *Discord) ListMembers(ctx context.Context) ([]Member, error) {
	var out []Member
	after := ""
	for {
		page, err := d.session.GuildMembers(d.guildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr(err)
		}
		for _, m := range page {
			out = append(out, toMember(m))
		}
		if len(page) < 1000 {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (d *Discord) ResolveMember(ctx context.Context, memberID string) (*Member, error) {
	m, err := d.session.GuildMember(d.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	member := toMember(m)
	return &member, nil
}

func (d *Discord) CommunityOwner(ctx context.Context) (*Member, error) {
	guild, err := d.session.Guild(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	return d.ResolveMember(ctx, guild.OwnerID)
}

func (d *Discord) MemberIsAdmin(ctx context.Context, memberID string) (bool, error) {
	guild, err := d.session.Guild(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapErr(err)
	}
	if guild.OwnerID == memberID {
		return true, nil
	}
	member, err := d.session.GuildMember(d.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapErr(err)
	}
	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapErr(err)
	}
	perms := make(map[string]int64, len(roles))
	for _, r := range roles {
		perms[r.ID] = r.Permissions
	}
	for _, roleID := range member.Roles {
		if perms[roleID]&discordgo.PermissionAdministrator != 0 {
			return true, nil
		}
	}
	return false, nil
}

func toMember(m *discordgo.Member) Member {
	return Member{
		ID:       m.User.ID,
		Username: m.User.Username,
		RoleIDs:  append([]string(nil), m.Roles...),
		JoinedAt: m.JoinedAt,
	}
}

// mapErr translates Discord REST failures into the platform error
// taxonomy. Anything unrecognized counts as unavailability.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) {
		if rerr.Message != nil {
			switch rerr.Message.Code {
			case discordgo.ErrCodeCannotSendMessagesToThisUser,
				discordgo.ErrCodeMissingPermissions,
				discordgo.ErrCodeMissingAccess:
				return fmt.Errorf("%w: %s", ErrPermissionDenied, rerr.Message.Message)
			case discordgo.ErrCodeUnknownMember,
				discordgo.ErrCodeUnknownUser,
				discordgo.ErrCodeUnknownRole,
				discordgo.ErrCodeUnknownChannel:
				return fmt.Errorf("%w: %s", ErrNotFound, rerr.Message.Message)
			}
		}
		if rerr.Response != nil {
			switch rerr.Response.StatusCode {
			case http.StatusForbidden:
				return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %v", ErrNotFound, err)
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
