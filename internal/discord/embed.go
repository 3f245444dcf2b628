package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/samcm/ts-querybot/internal/state"
)

const (
	colorConnecting = 0xFAA61A
	colorEmpty      = 0x95A5A6
	colorFull       = 0xE74C3C
	colorBusy       = 0xF39C12
	colorAvailable  = 0x2ECC71

	idleThreshold = 5 * time.Minute
)

// BuildEmbed renders snap as a status embed. A nil snapshot renders the
// "connecting" placeholder shown while the session synchronizes.
func BuildEmbed(display DisplayConfig, snap *state.Snapshot, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:     0x2B5B84,
		Timestamp: now.Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    "TeamSpeak Server",
			IconURL: "https://i.imgur.com/pK2qRkC.png",
		},
	}

	if snap == nil {
		embed.Description = "```\n⏳ Connecting to server...\n```"
		embed.Color = colorConnecting

		return embed
	}

	embed.Title = snap.ServerName

	if display.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: display.ThumbnailURL}
	}

	embed.Color = capacityColor(snap.TotalUsers, snap.MaxClients)

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "👥 Online",
			Value:  fmt.Sprintf("**%d** / %d", snap.TotalUsers, snap.MaxClients),
			Inline: true,
		},
		{
			Name:   "⏱️ Uptime",
			Value:  FormatDuration(snap.Uptime),
			Inline: true,
		},
	}

	if display.ServerAddress != "" {
		connect := fmt.Sprintf("`%s`", display.ServerAddress)
		if display.ServerPassword != "" {
			connect += fmt.Sprintf("\nPass: `%s`", display.ServerPassword)
		}

		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "🔗 Connect",
			Value:  connect,
			Inline: true,
		})
	}

	fields = append(fields, &discordgo.MessageEmbedField{
		Name:  "📢 Channels",
		Value: channelList(display, snap),
	})

	embed.Fields = fields

	footer := "Last updated"
	if display.CustomFooter != "" {
		footer = display.CustomFooter
	}

	embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}

	return embed
}

func capacityColor(users, maxClients int) int {
	if users == 0 {
		return colorEmpty
	}

	if maxClients <= 0 {
		return colorAvailable
	}

	load := float64(users) / float64(maxClients)

	switch {
	case load >= 0.8:
		return colorFull
	case load >= 0.5:
		return colorBusy
	default:
		return colorAvailable
	}
}

// VisibleChannels returns the channels worth listing: spacers are always
// hidden, empty channels unless showEmpty is set.
func VisibleChannels(snap *state.Snapshot, showEmpty bool) []state.ChannelSnapshot {
	out := make([]state.ChannelSnapshot, 0, len(snap.Channels))

	for _, ch := range snap.Channels {
		if !showEmpty && len(ch.Users) == 0 {
			continue
		}

		if strings.Contains(strings.ToLower(ch.Name), "spacer") {
			continue
		}

		out = append(out, ch)
	}

	return out
}

func channelList(display DisplayConfig, snap *state.Snapshot) string {
	channels := VisibleChannels(snap, display.ShowEmptyChannels)
	if len(channels) == 0 {
		return "*No active channels*"
	}

	var b strings.Builder

	for _, ch := range channels {
		if len(ch.Users) > 0 {
			fmt.Fprintf(&b, "**#%s** `%d`\n", ch.Name, len(ch.Users))
		} else {
			fmt.Fprintf(&b, "**#%s**\n", ch.Name)
		}

		for _, user := range ch.Users {
			if status := userStatus(user); status != "" {
				fmt.Fprintf(&b, "ㅤ• %s %s\n", user.Nickname, status)
			} else {
				fmt.Fprintf(&b, "ㅤ• %s\n", user.Nickname)
			}
		}

		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func userStatus(user state.UserSnapshot) string {
	var b strings.Builder

	if user.IsRecording {
		b.WriteString("🔴")
	}

	if user.OutputMuted {
		b.WriteString("🔇")
	} else if user.InputMuted {
		b.WriteString("🎙️")
	}

	if user.Away {
		b.WriteString("💤")
	}

	if user.IdleTime > idleThreshold {
		fmt.Fprintf(&b, " (%s idle)", FormatIdle(user.IdleTime))
	}

	return b.String()
}

// ChannelName expands {online}, {max} and {server} in format.
func ChannelName(format string, snap *state.Snapshot) string {
	return strings.NewReplacer(
		"{online}", strconv.Itoa(snap.TotalUsers),
		"{max}", strconv.Itoa(snap.MaxClients),
		"{server}", snap.ServerName,
	).Replace(format)
}

// FormatIdle formats an idle duration compactly, e.g. "1h5m".
func FormatIdle(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}

	return fmt.Sprintf("%dm", minutes)
}

// FormatDuration formats an uptime, e.g. "2d 3h".
func FormatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}

	return fmt.Sprintf("%dm", minutes)
}
