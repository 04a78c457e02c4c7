package slack

import (
	"log"

	"github.com/slack-go/slack"
)

type Client struct {
	api   *slack.Client
	botID string
}

func NewClient(token string) *Client {
	api := slack.New(token)

	authTest, err := api.AuthTest()
	if err != nil {
		log.Fatalf("Failed to authenticate with Slack: %v", err)
	}

	return &Client{
		api:   api,
		botID: authTest.UserID,
	}
}

func (c *Client) GetBotID() string {
	return c.botID
}

func (c *Client) SendMessage(channelID, message string) error {
	_, _, err := c.api.PostMessage(
		channelID,
		slack.MsgOptionText(message, false),
	)
	return err
}

// SendThreadMessage posts a reply into a thread.
func (c *Client) SendThreadMessage(channelID, threadTS, message string) error {
	_, _, err := c.api.PostMessage(
		channelID,
		slack.MsgOptionText(message, false),
		slack.MsgOptionTS(threadTS),
	)
	return err
}

// SendThreadMessageAndGetTS posts a thread reply and returns its timestamp
// so later reactions can be matched back to it.
func (c *Client) SendThreadMessageAndGetTS(channelID, threadTS, message string) (string, error) {
	_, timestamp, err := c.api.PostMessage(
		channelID,
		slack.MsgOptionText(message, false),
		slack.MsgOptionTS(threadTS),
	)
	return timestamp, err
}
