package slackbot

import (
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

func StartSlackBot(h *Commands, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				log.Println("Connecting to Slack with Socket Mode...")
			case socketmode.EventTypeConnectionError:
				log.Println("Slack connection failed. Retrying later...")
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, h, cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go handleEventsAPI(api, h, eventsAPIEvent)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, h *Commands, cmd slack.SlashCommand) {
	var reply string
	switch cmd.Command {
	case "/complain":
		reply = h.Complain(cmd.UserID, cmd.Text)
	case "/complaint":
		reply = h.Show(cmd.Text)
	case "/complaints":
		reply = h.List(cmd.Text)
	case "/complaint-stats":
		reply = h.Stats()
	case "/complaint-status":
		reply = h.SetStatus(cmd.UserID, cmd.Text)
	case "/complaint-help":
		reply = h.Help(cmd.UserID)
	default:
		return
	}
	postEphemeral(api, cmd, reply)
}

func handleEventsAPI(api *slack.Client, h *Commands, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		replyWithHint(api, h, ev.Channel, ev.User, ev.Text, ev.TimeStamp)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" || ev.ChannelType != "im" {
			return
		}
		replyWithHint(api, h, ev.Channel, ev.User, ev.Text, ev.TimeStamp)
	}
}

func replyWithHint(api *slack.Client, h *Commands, channel, user, text, ts string) {
	hint, ok := h.Hint(strings.TrimSpace(text))
	if !ok {
		return
	}
	_, _, err := api.PostMessage(channel,
		slack.MsgOptionText(hint, false),
		slack.MsgOptionTS(ts),
	)
	if err != nil {
		log.Printf("complaint hint error user=%s channel=%s: %v", user, channel, err)
		return
	}
	log.Printf("complaint hint sent user=%s channel=%s", user, channel)
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	_, err := api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}
