package discordutils

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// MemberHasAdminPermissions returns true if the given member has admin permissions.
func MemberHasAdminPermissions(guild *discordgo.Guild, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	if guild == nil {
		return false
	}

	guildRoles := make(map[string]*discordgo.Role)
	for _, role := range guild.Roles {
		guildRoles[role.ID] = role
	}

	for _, roleID := range member.Roles {
		if role, ok := guildRoles[roleID]; ok {
			if RoleAllowsAdminPermissions(role) {
				return true
			}
		}
	}

	return false
}

// RoleAllowsAdminPermissions returns true if the given role allows admin permissions.
func RoleAllowsAdminPermissions(role *discordgo.Role) bool {
	return role.Permissions&discordgo.PermissionAdministrator > 0
}

// MemberIsOfficer returns true if the member is an admin or holds any of the
// officer roles.
func MemberIsOfficer(guild *discordgo.Guild, member *discordgo.Member, officerRoleIDs []string) bool {
	if MemberHasAdminPermissions(guild, member) {
		return true
	}
	for _, roleID := range officerRoleIDs {
		if MemberHasRole(member, roleID) {
			return true
		}
	}
	return false
}

// MemberHasRole returns true if the given member has the given role.
func MemberHasRole(member *discordgo.Member, roleID string) bool {
	return member != nil && slices.Contains(member.Roles, roleID)
}

// FindMembersWithRole filters the given list of members to include only those
// with the given role.
func FindMembersWithRole(
	roleID string,
	members []*discordgo.Member,
) (membersWithRole []*discordgo.Member) {
	for _, member := range members {
		if MemberHasRole(member, roleID) {
			membersWithRole = append(membersWithRole, member)
		}
	}
	return
}

// InteractionUser returns the user that triggered the interaction, whether it
// came from a guild or a DM.
func InteractionUser(interaction *discordgo.Interaction) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

// AckInteraction sends a deferred response for the given interaction.
func AckInteraction(
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) error {
	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// SendFollowup creates a followup message with the given content.
func SendFollowup(
	content string,
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) error {
	_, err := session.FollowupMessageCreate(
		interaction,
		true,
		&discordgo.WebhookParams{
			Content: content,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{},
			},
		},
	)
	return err
}
