package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func TestParseCommand(t *testing.T) {
	name, args, ok := parseCommand("  !Giveaway 1h 2 Nitro Classic ", "!")
	if !ok || name != "giveaway" {
		t.Fatalf("expected giveaway command, got %q ok=%v", name, ok)
	}
	if len(args) != 4 || args[3] != "Classic" {
		t.Fatalf("unexpected args %v", args)
	}
	if _, _, ok := parseCommand("hello !giveaway", "!"); ok {
		t.Fatalf("prefix must lead the message")
	}
	if _, _, ok := parseCommand("!", "!"); ok {
		t.Fatalf("bare prefix is not a command")
	}
}

func TestParseStartArgs(t *testing.T) {
	got, err := parseStartArgs([]string{"1d12h", "3w", "Steam", "key"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Duration != 36*time.Hour || got.Winners != 3 || got.Prize != "Steam key" {
		t.Fatalf("unexpected args %+v", got)
	}

	week, err := parseStartArgs([]string{"1w", "1", "Nitro"})
	if err != nil || week.Duration != 7*24*time.Hour {
		t.Fatalf("expected one week, got %+v err=%v", week, err)
	}

	cases := []struct {
		args []string
		want error
	}{
		{[]string{"1h", "2"}, errUsage},
		{[]string{"soon", "2", "Nitro"}, errBadDuration},
		{[]string{"1h", "two", "Nitro"}, errBadWinnerCount},
	}
	for _, tc := range cases {
		if _, err := parseStartArgs(tc.args); !errors.Is(err, tc.want) {
			t.Fatalf("%v: expected %v, got %v", tc.args, tc.want, err)
		}
	}
}

func TestParseMessageID(t *testing.T) {
	valid := []struct {
		in   string
		want string
	}{
		{"123456789012345678", "123456789012345678"},
		{"https://discord.com/channels/111111111111111111/222222222222222222/333333333333333333", "333333333333333333"},
		{"<https://ptb.discord.com/channels/111111111111111111/222222222222222222/444444444444444444>", "444444444444444444"},
	}
	for _, tc := range valid {
		got, err := parseMessageID(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("%s: expected %s, got %s err=%v", tc.in, tc.want, got, err)
		}
	}
	for _, in := range []string{"", "abc", "12", "https://example.com/channels/1/2/3"} {
		if _, err := parseMessageID(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: 1", giveaway.ErrNotFound), "No giveaway found"},
		{giveaway.ErrAlreadyEnded, "already ended"},
		{giveaway.ErrNoParticipants, "Nobody has entered"},
		{giveaway.ErrUnresolvableMessage, "no longer find"},
		{fmt.Errorf("%w (20)", giveaway.ErrTooManyWinners), "Winner count exceeds the allowed maximum (20)."},
		{fmt.Errorf("%w (200 characters)", giveaway.ErrPrizeTooLong), "Prize is longer than the allowed maximum"},
		{&giveaway.AnnouncementError{Op: "post", Err: errors.New("403")}, "could not post"},
		{errors.New("boom"), "Something went wrong"},
	}
	for _, tc := range cases {
		if got := userMessage(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("%v: expected %q in %q", tc.err, tc.want, got)
		}
	}
}

func TestHasManagePermission(t *testing.T) {
	if hasManagePermission(discordgo.PermissionSendMessages) {
		t.Fatalf("send messages alone is not elevated")
	}
	for _, perm := range []int64{discordgo.PermissionManageMessages, discordgo.PermissionManageServer, discordgo.PermissionAdministrator} {
		if !hasManagePermission(perm | discordgo.PermissionSendMessages) {
			t.Fatalf("expected %d to be elevated", perm)
		}
	}
}

func TestListFieldsCapped(t *testing.T) {
	var active []storage.Giveaway
	for i := 0; i < 30; i++ {
		active = append(active, storage.Giveaway{MessageID: fmt.Sprint(i), GuildID: "g", ChannelID: "c", Prize: "Prize", WinnerCount: 1, EndAt: time.Unix(1700000000, 0)})
	}
	fields := listFields(active)
	if len(fields) != maxListFields {
		t.Fatalf("expected %d fields, got %d", maxListFields, len(fields))
	}
	if !strings.Contains(fields[0].Value, "<t:1700000000:R>") || !strings.Contains(fields[0].Value, "https://discord.com/channels/g/c/0") {
		t.Fatalf("unexpected field %q", fields[0].Value)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	got := truncate(strings.Repeat("é", 10), 9)
	if len(got) > 9 || !strings.HasSuffix(got, "…") {
		t.Fatalf("unexpected truncation %q (%d bytes)", got, len(got))
	}
}
