package protocol

import (
	"strings"

	ts3 "github.com/multiplay/go-ts3"
)

// Text message target modes.
const (
	TargetClient  = 1
	TargetChannel = 2
	TargetServer  = 3
)

// Notification event categories accepted by servernotifyregister.
const (
	EventServer      = "server"
	EventChannel     = "channel"
	EventTextServer  = "textserver"
	EventTextChannel = "textchannel"
	EventTextPrivate = "textprivate"
)

func render(cmd *ts3.Cmd) string {
	return strings.TrimSpace(cmd.String())
}

// Login authenticates the query session.
func Login(user, password string) string {
	return render(ts3.NewCmd("login").WithArgs(
		ts3.NewArg("client_login_name", user),
		ts3.NewArg("client_login_password", password),
	))
}

// Use selects a virtual server, optionally naming the query client.
func Use(serverID int, nickname string) string {
	args := []ts3.CmdArg{ts3.NewArg("sid", serverID)}
	if nickname != "" {
		args = append(args, ts3.NewArg("client_nickname", nickname))
	}

	return render(ts3.NewCmd("use").WithArgs(args...))
}

// NotifyRegister subscribes to an event category. Channel events need a
// channel id; other categories ignore id when it is negative.
func NotifyRegister(event string, id int) string {
	args := []ts3.CmdArg{ts3.NewArg("event", event)}
	if id >= 0 {
		args = append(args, ts3.NewArg("id", id))
	}

	return render(ts3.NewCmd("servernotifyregister").WithArgs(args...))
}

// WhoAmI requests the session's own identity.
func WhoAmI() string {
	return render(ts3.NewCmd("whoami"))
}

// Version is a harmless command used as keepalive.
func Version() string {
	return render(ts3.NewCmd("version"))
}

// ServerInfo requests the selected virtual server's attributes.
func ServerInfo() string {
	return render(ts3.NewCmd("serverinfo"))
}

// ClientList requests every online client.
func ClientList() string {
	return render(ts3.NewCmd("clientlist"))
}

// ChannelList requests every channel.
func ChannelList() string {
	return render(ts3.NewCmd("channellist"))
}

// ClientInfo requests the full attribute set of one client.
func ClientInfo(clid int) string {
	return render(ts3.NewCmd("clientinfo").WithArgs(ts3.NewArg("clid", clid)))
}

// ServerGroupsByClientID requests the servergroups of a database client.
func ServerGroupsByClientID(cldbid int) string {
	return render(ts3.NewCmd("servergroupsbyclientid").WithArgs(ts3.NewArg("cldbid", cldbid)))
}

// ClientMove moves a client into a channel.
func ClientMove(clid, cid int) string {
	return render(ts3.NewCmd("clientmove").WithArgs(
		ts3.NewArg("clid", clid),
		ts3.NewArg("cid", cid),
	))
}

// ClientUpdateNickname renames the query client.
func ClientUpdateNickname(nickname string) string {
	return render(ts3.NewCmd("clientupdate").WithArgs(ts3.NewArg("client_nickname", nickname)))
}

// SendTextMessage sends msg to a client, channel or server.
func SendTextMessage(mode, target int, msg string) string {
	return render(ts3.NewCmd("sendtextmessage").WithArgs(
		ts3.NewArg("targetmode", mode),
		ts3.NewArg("target", target),
		ts3.NewArg("msg", msg),
	))
}

// ServerGroupAddClient adds a database client to a servergroup.
func ServerGroupAddClient(sgid, cldbid int) string {
	return render(ts3.NewCmd("servergroupaddclient").WithArgs(
		ts3.NewArg("sgid", sgid),
		ts3.NewArg("cldbid", cldbid),
	))
}

// ServerGroupDelClient removes a database client from a servergroup.
func ServerGroupDelClient(sgid, cldbid int) string {
	return render(ts3.NewCmd("servergroupdelclient").WithArgs(
		ts3.NewArg("sgid", sgid),
		ts3.NewArg("cldbid", cldbid),
	))
}
