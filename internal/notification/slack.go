package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/model"
)

// SlackNotifier posts each signal as a coloured attachment.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	limiter *rate.Limiter
}

// NewSlackNotifier creates a Slack notifier for channel using client.
func NewSlackNotifier(client *slack.Client, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  client,
		channel: channel,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Notify(ctx context.Context, ev model.SignalEvent) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "slack: rate limit wait")
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(FormatTitle(ev), false),
		slack.MsgOptionAttachments(SlackAttachment(ev)))
	if err != nil {
		return errors.Wrapf(err, "slack: post to %s", n.channel)
	}

	log.WithFields(logger.Fields(ctx)).Infof("[slack] alert sent: %s", FormatTitle(ev))
	return nil
}

// SlackAttachment renders the signal fields.
func SlackAttachment(ev model.SignalEvent) slack.Attachment {
	s := ev.Signal
	color := "#2eb886"
	if s.Direction == model.Bearish {
		color = "#a30200"
	}
	band := "no"
	if s.BandTouched {
		band = "yes"
	}
	return slack.Attachment{
		Color: color,
		Title: fmt.Sprintf("%s %s DIVERGENCE", directionEmoji(s.Direction), s.Direction),
		Fields: []slack.AttachmentField{
			{Title: "Symbol", Value: ev.Instrument.Symbol, Short: true},
			{Title: "Timeframe", Value: ev.Timeframe.String(), Short: true},
			{Title: "Strength", Value: s.Strength(), Short: true},
			{Title: "Pattern", Value: s.Pattern, Short: true},
			{Title: "Price", Value: fmt.Sprintf("%.2f → %.2f", s.PointA.Close, s.PointB.Close), Short: true},
			{Title: "RSI", Value: fmt.Sprintf("%.2f → %.2f", s.PointA.RSI, s.PointB.RSI), Short: true},
			{Title: "Bollinger Band Touched", Value: band, Short: true},
		},
		Footer: s.Confirmation.TS.In(model.IST).Format("2006-01-02 15:04 IST"),
	}
}
