package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vip-bot/internal/models"
	"vip-bot/internal/platform"
)

const timestampLayout = "2006-01-02 15:04:05"

func (b *Bot) registerCommands() {
	b.register(&Command{
		Name:      "addvip",
		Help:      "Add a VIP subscription to a member for a duration like 30m, 12h, 10d or 1M.",
		AdminOnly: true,
		Args: []ArgSpec{
			{Name: "member", Kind: ArgMember},
			{Name: "duration", Kind: ArgString},
		},
		Run: b.cmdAddVIP,
	})
	b.register(&Command{
		Name:      "removevip",
		Help:      "Remove a VIP subscription from a member.",
		AdminOnly: true,
		Args:      []ArgSpec{{Name: "member", Kind: ArgMember}},
		Run:       b.cmdRemoveVIP,
	})
	b.register(&Command{
		Name: "checkvip",
		Help: "Check a member's VIP status.",
		Args: []ArgSpec{{Name: "member", Kind: ArgMember}},
		Run:  b.cmdCheckVIP,
	})
	b.register(&Command{
		Name: "listvip",
		Help: "List all active and expired VIP subscriptions.",
		Run:  b.cmdListVIP,
	})
	b.register(&Command{
		Name:      "checkexpiredvip",
		Help:      "Sweep expired VIP subscriptions and update roles.",
		AdminOnly: true,
		Run:       b.cmdCheckExpiredVIP,
	})
	b.register(&Command{
		Name: "assign_tag",
		Help: "Assign a tag to a member. Example: !assign_tag @user tagname",
		Args: []ArgSpec{
			{Name: "member", Kind: ArgMember},
			{Name: "tag", Kind: ArgString},
		},
		Run: b.cmdAssignTag,
	})
	b.register(&Command{
		Name: "remove_tag",
		Help: "Remove a tag from a member. Example: !remove_tag @user tagname",
		Args: []ArgSpec{
			{Name: "member", Kind: ArgMember},
			{Name: "tag", Kind: ArgString},
		},
		Run: b.cmdRemoveTag,
	})
	b.register(&Command{
		Name:      "set_tag_rule",
		Help:      "Set roles allowed to manage a tag. Example: !set_tag_rule tagname Admin Moderator",
		AdminOnly: true,
		Args: []ArgSpec{
			{Name: "tag", Kind: ArgString},
			{Name: "roles", Kind: ArgRest},
		},
		Run: b.cmdSetTagRule,
	})
	b.register(&Command{
		Name: "list_tags",
		Help: "List all available tags.",
		Run:  b.cmdListTags,
	})
	b.register(&Command{
		Name: "user_tags",
		Help: "List tags assigned to a member. Example: !user_tags @user",
		Args: []ArgSpec{{Name: "member", Kind: ArgMember}},
		Run:  b.cmdUserTags,
	})
	b.register(&Command{
		Name: "user_level",
		Help: "Check a member's roles and promotion progress.",
		Args: []ArgSpec{{Name: "member", Kind: ArgMember, Optional: true}},
		Run:  b.cmdUserLevel,
	})
	b.register(&Command{
		Name: "active_time",
		Help: "Check a member's total online time.",
		Args: []ArgSpec{{Name: "member", Kind: ArgMember, Optional: true}},
		Run:  b.cmdActiveTime,
	})
	b.register(&Command{
		Name: "help",
		Help: "List available commands.",
		Run:  b.cmdHelp,
	})
}

func (b *Bot) cmdAddVIP(ctx context.Context, inv *Invocation) error {
	target, _ := inv.TargetMember("member")
	durationStr := inv.Arg("duration")

	if _, err := b.engine.Grant(ctx, target.ID, durationStr); err != nil {
		return err
	}

	inv.Reply(ctx, fmt.Sprintf("VIP subscription added for %s for %s.", target.Mention(), durationStr))
	if err := b.notifier.NotifyAdmin(ctx, fmt.Sprintf("%s has been added to VIP for %s.", target.Mention(), durationStr)); err != nil {
		logrus.Errorf("Failed to notify admin about VIP grant for %s: %v", target.ID, err)
	}
	if err := b.audit.Append(inv.Author.ID, "addvip", target.ID); err != nil {
		logrus.Errorf("Failed to write audit entry: %v", err)
	}
	return nil
}

func (b *Bot) cmdRemoveVIP(ctx context.Context, inv *Invocation) error {
	target, _ := inv.TargetMember("member")

	if err := b.engine.Revoke(ctx, target.ID); err != nil {
		return err
	}

	inv.Reply(ctx, fmt.Sprintf("VIP subscription removed for %s.", target.Mention()))
	if err := b.notifier.NotifyAdmin(ctx, fmt.Sprintf("%s has been removed from VIP.", target.Mention())); err != nil {
		logrus.Errorf("Failed to notify admin about VIP removal for %s: %v", target.ID, err)
	}
	if err := b.audit.Append(inv.Author.ID, "removevip", target.ID); err != nil {
		logrus.Errorf("Failed to write audit entry: %v", err)
	}
	return nil
}

func (b *Bot) cmdCheckVIP(ctx context.Context, inv *Invocation) error {
	target, _ := inv.TargetMember("member")

	expiry, ok, err := b.engine.QueryStatus(target.ID)
	if err != nil {
		return err
	}
	if ok {
		inv.Reply(ctx, fmt.Sprintf("%s's VIP subscription is valid until %s.", target.Mention(), expiry.Format(timestampLayout)))
	} else {
		inv.Reply(ctx, fmt.Sprintf("%s does not have an active VIP subscription.", target.Mention()))
	}
	return nil
}

func (b *Bot) cmdListVIP(ctx context.Context, inv *Invocation) error {
	active, expired, err := b.engine.ListStatus()
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("**VIP List**\n**Active VIPs**\n")
	sb.WriteString(formatVIPLines(active, "Expires on"))
	sb.WriteString("\n**Expired VIPs**\n")
	sb.WriteString(formatVIPLines(expired, "Expired on"))

	inv.Reply(ctx, sb.String())
	return nil
}

func formatVIPLines(subs []models.Subscription, verb string) string {
	if len(subs) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(subs))
	for _, sub := range subs {
		lines = append(lines, fmt.Sprintf("<@%s> - %s %s", sub.MemberID, verb, sub.ExpiryAt.Format(timestampLayout)))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdCheckExpiredVIP(ctx context.Context, inv *Invocation) error {
	processed, err := b.engine.SweepExpired(ctx)
	if err != nil {
		return err
	}
	inv.Reply(ctx, fmt.Sprintf("Checked for expired VIPs and updated roles accordingly. Processed %d.", processed))
	return nil
}

func (b *Bot) cmdAssignTag(ctx context.Context, inv *Invocation) error {
	target, _ := inv.TargetMember("member")
	tag := inv.Arg("tag")

	if err := b.tags.Assign(ctx, inv.Author, target, tag); err != nil {
		return err
	}
	inv.Reply(ctx, fmt.Sprintf("Successfully assigned tag '%s' to %s.", tag, target.Mention()))
	return nil
}

func (b *Bot) cmdRemoveTag(ctx context.Context, inv *Invocation) error {
	target, _ := inv.TargetMember("member")
	tag := inv.Arg("tag")

	if err := b.tags.Remove(ctx, inv.Author, target, tag); err != nil {
		return err
	}
	inv.Reply(ctx, fmt.Sprintf("Successfully removed tag '%s' from %s.", tag, target.Mention()))
	return nil
}

func (b *Bot) cmdSetTagRule(ctx context.Context, inv *Invocation) error {
	tag := inv.Arg("tag")
	roles := inv.Rest()
	if len(roles) == 0 {
		inv.Reply(ctx, msgMissingArgument)
		return nil
	}

	if err := b.tags.SetRule(tag, roles); err != nil {
		return err
	}
	inv.Reply(ctx, fmt.Sprintf("Roles allowed to manage the tag '%s': %s", tag, strings.Join(roles, ", ")))
	return nil
}

func (b *Bot) cmdListTags(ctx context.Context, inv *Invocation) error {
	all, err := b.tags.AllTags()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		inv.Reply(ctx, "No tags available.")
		return nil
	}
	inv.Reply(ctx, fmt.Sprintf("Available tags: %s", strings.Join(all, ", ")))
	return nil
}

func (b *Bot) cmdUserTags(ctx context.Context, inv *Invocation) error {
	target, _ := inv.TargetMember("member")

	memberTags, err := b.tags.MemberTags(target.ID)
	if err != nil {
		return err
	}
	if len(memberTags) == 0 {
		inv.Reply(ctx, fmt.Sprintf("%s has no tags assigned.", target.Mention()))
		return nil
	}
	inv.Reply(ctx, fmt.Sprintf("%s has the following tags: %s", target.Mention(), strings.Join(memberTags, ", ")))
	return nil
}

func (b *Bot) cmdUserLevel(ctx context.Context, inv *Invocation) error {
	target := inv.targetOrAuthor()

	roleNames, err := b.memberRoleNames(ctx, target)
	if err != nil {
		return err
	}
	roleStr := "No special roles assigned."
	if len(roleNames) > 0 {
		roleStr = strings.Join(roleNames, ", ")
	}

	total, err := b.tracker.Total(target.ID)
	if err != nil {
		return err
	}
	membership := time.Since(target.JoinedAt)

	msg := fmt.Sprintf("%s's current roles: %s\nActive Time: %s\nMembership Duration: %s",
		target.Mention(), roleStr, formatHMS(total), formatHMS(membership))

	if rank, remaining, ok, err := b.tracker.NextPromotion(target.ID); err != nil {
		return err
	} else if ok {
		msg += fmt.Sprintf("\nTime until %s: %s", rank.RoleName, formatHMS(remaining))
	}

	inv.Reply(ctx, msg)
	return nil
}

func (b *Bot) cmdActiveTime(ctx context.Context, inv *Invocation) error {
	target := inv.targetOrAuthor()

	total, err := b.tracker.Total(target.ID)
	if err != nil {
		return err
	}
	inv.Reply(ctx, fmt.Sprintf("%s's total active time: %s (HH:MM:SS)", target.Mention(), formatHMS(total)))
	return nil
}

func (b *Bot) cmdHelp(ctx context.Context, inv *Invocation) error {
	var sb strings.Builder
	sb.WriteString("**Available commands**\n")
	for _, name := range b.order {
		cmd := b.commands[name]
		suffix := ""
		if cmd.AdminOnly {
			suffix = " (admin)"
		}
		sb.WriteString(fmt.Sprintf("%s%s%s - %s\n", b.prefix, cmd.Name, suffix, cmd.Help))
	}
	inv.Reply(ctx, sb.String())
	return nil
}

func (inv *Invocation) targetOrAuthor() platform.Member {
	if target, ok := inv.TargetMember("member"); ok {
		return target
	}
	return inv.Author
}

func (b *Bot) memberRoleNames(ctx context.Context, member platform.Member) ([]string, error) {
	roles, err := b.gw.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	var out []string
	for _, id := range member.RoleIDs {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func formatHMS(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
