package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"vip-bot/internal/duration"
	"vip-bot/internal/platform"
	"vip-bot/internal/tags"
)

type ArgKind int

const (
	// ArgMember accepts a mention ("<@id>", "<@!id>") or a raw member ID.
	ArgMember ArgKind = iota
	// ArgString accepts one token.
	ArgString
	// ArgRest swallows every remaining token; must be the last spec.
	ArgRest
)

type ArgSpec struct {
	Name     string
	Kind     ArgKind
	Optional bool
}

// Command maps a name to a handler with a declared argument schema. The
// router validates arguments before the handler runs.
type Command struct {
	Name      string
	Help      string
	AdminOnly bool
	Args      []ArgSpec
	Run       func(ctx context.Context, inv *Invocation) error
}

// Invocation carries one validated command call.
type Invocation struct {
	bot       *Bot
	ChannelID string
	Author    platform.Member

	members map[string]platform.Member
	strs    map[string]string
	rest    []string
}

func (inv *Invocation) TargetMember(name string) (platform.Member, bool) {
	m, ok := inv.members[name]
	return m, ok
}

func (inv *Invocation) Arg(name string) string {
	return inv.strs[name]
}

func (inv *Invocation) Rest() []string {
	return inv.rest
}

func (inv *Invocation) Reply(ctx context.Context, text string) {
	if err := inv.bot.gw.PostToChannel(ctx, inv.ChannelID, text); err != nil {
		logrus.Errorf("Failed to reply in channel %s: %v", inv.ChannelID, err)
	}
}

const (
	msgUnknownCommand  = "Command not found. Please check the available commands and try again."
	msgMissingArgument = "Missing required argument. Please check your command and try again."
	msgMemberNotFound  = "Member not found. Please ensure the member is in the server and try again."
	msgNoPermission    = "You do not have the required permissions to execute this command."
	msgUnexpected      = "An unexpected error occurred. Please contact the administrator."
)

// Dispatch parses a raw message, validates it against the command schema
// and runs the handler. Replies go back to the originating channel.
func (b *Bot) Dispatch(ctx context.Context, channelID, authorID, content string) {
	if !strings.HasPrefix(content, b.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.prefix))
	if len(fields) == 0 {
		return
	}
	name, argv := fields[0], fields[1:]

	reply := func(text string) {
		if err := b.gw.PostToChannel(ctx, channelID, text); err != nil {
			logrus.Errorf("Failed to reply in channel %s: %v", channelID, err)
		}
	}

	cmd, ok := b.commands[name]
	if !ok {
		reply(msgUnknownCommand)
		return
	}

	author, err := b.gw.ResolveMember(ctx, authorID)
	if err != nil {
		logrus.Errorf("Failed to resolve command author %s: %v", authorID, err)
		reply(msgUnexpected)
		return
	}

	if cmd.AdminOnly {
		admin, err := b.gw.MemberIsAdmin(ctx, authorID)
		if err != nil {
			logrus.Errorf("Failed to check admin permission for %s: %v", authorID, err)
			reply(msgUnexpected)
			return
		}
		if !admin {
			logrus.Warnf("Permission denied for %s on command %s", authorID, name)
			reply(msgNoPermission)
			return
		}
	}

	inv, problem, err := b.parseArgs(ctx, cmd, channelID, *author, argv)
	if err != nil {
		logrus.Errorf("Failed to parse arguments for %s: %v", name, err)
		reply(msgUnexpected)
		return
	}
	if problem != "" {
		reply(problem)
		return
	}

	if err := cmd.Run(ctx, inv); err != nil {
		reply(userMessage(err))
		if !isUserFault(err) {
			logrus.Errorf("Command %s by %s failed: %v", name, authorID, err)
		}
	}
}

// parseArgs validates tokens against the schema. A non-empty problem
// string is a user-facing validation failure; an error is an internal
// fault.
func (b *Bot) parseArgs(ctx context.Context, cmd *Command, channelID string, author platform.Member, argv []string) (*Invocation, string, error) {
	inv := &Invocation{
		bot:       b,
		ChannelID: channelID,
		Author:    author,
		members:   make(map[string]platform.Member),
		strs:      make(map[string]string),
	}

	i := 0
	for _, spec := range cmd.Args {
		if spec.Kind == ArgRest {
			inv.rest = argv[i:]
			i = len(argv)
			break
		}
		if i >= len(argv) {
			if spec.Optional {
				continue
			}
			return nil, msgMissingArgument, nil
		}
		token := argv[i]
		i++
		switch spec.Kind {
		case ArgMember:
			member, err := b.gw.ResolveMember(ctx, parseMention(token))
			if errors.Is(err, platform.ErrNotFound) {
				return nil, msgMemberNotFound, nil
			}
			if err != nil {
				return nil, "", err
			}
			inv.members[spec.Name] = *member
		case ArgString:
			inv.strs[spec.Name] = token
		}
	}
	return inv, "", nil
}

// parseMention extracts the member ID from a mention token, or returns
// the token unchanged.
func parseMention(token string) string {
	if strings.HasPrefix(token, "<@") && strings.HasSuffix(token, ">") {
		id := strings.TrimSuffix(strings.TrimPrefix(token, "<@"), ">")
		return strings.TrimPrefix(id, "!")
	}
	return token
}

// userMessage maps an error to what the requester sees. Validation
// failures are specific; everything else gets a generic acknowledgment
// and a log entry for the operator.
func userMessage(err error) string {
	if isUserFault(err) {
		return capitalize(err.Error())
	}
	if errors.Is(err, platform.ErrNotFound) {
		return msgMemberNotFound
	}
	return msgUnexpected
}

func isUserFault(err error) bool {
	return errors.Is(err, duration.ErrInvalidFormat) ||
		errors.Is(err, duration.ErrInvalidUnit) ||
		errors.Is(err, tags.ErrInvalidTag) ||
		errors.Is(err, tags.ErrNotAuthorized) ||
		errors.Is(err, tags.ErrAlreadyAssigned) ||
		errors.Is(err, tags.ErrNotAssigned)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
