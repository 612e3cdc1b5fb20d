package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/mis-api/internal/email"
	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/pkg/messaging"
	"github.com/jwalitptl/mis-api/pkg/metrics"
)

const (
	outcomeSent    = "sent"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// NotifierConfig configures the status-change notifier
type NotifierConfig struct {
	Channel string
	// SendTimeout bounds one delivery attempt
	SendTimeout time.Duration
}

// Notifier mails patients when one of their consultations changes status
type Notifier struct {
	broker  messaging.Broker
	mailer  email.Service
	config  NotifierConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewNotifier(broker messaging.Broker, mailer email.Service, config NotifierConfig, m *metrics.Metrics) *Notifier {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	return &Notifier{
		broker:  broker,
		mailer:  mailer,
		config:  config,
		metrics: m,
		logger:  log.With().Str("component", "notifier").Str("channel", config.Channel).Logger(),
	}
}

// Start consumes events until ctx is done or the subscription closes
func (n *Notifier) Start(ctx context.Context) error {
	messages, err := n.broker.Subscribe(ctx, n.config.Channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.logger.Info().Msg("notifier started")
	for {
		select {
		case <-ctx.Done():
			n.logger.Info().Msg("notifier shutting down")
			return nil
		case payload, ok := <-messages:
			if !ok {
				n.logger.Info().Msg("subscription closed")
				return nil
			}
			if err := n.Handle(ctx, payload); err != nil {
				n.logger.Error().Err(err).Msg("failed to handle event")
			}
		}
	}
}

// Handle processes one encoded ConsultationEvent. Events other than
// status changes, and patients without an address, are skipped.
func (n *Notifier) Handle(ctx context.Context, payload []byte) error {
	var evt model.ConsultationEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		n.observe("unknown", outcomeFailed, time.Time{})
		return fmt.Errorf("failed to decode event: %w", err)
	}

	if evt.Type != model.EventConsultationStatusChanged || evt.PatientEmail == "" {
		n.observe(evt.Type, outcomeSkipped, evt.OccurredAt)
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.config.SendTimeout)
	defer cancel()

	subject, body := statusChangedMessage(&evt)
	if err := n.mailer.SendCustom(sendCtx, evt.PatientEmail, subject, body); err != nil {
		n.observe(evt.Type, outcomeFailed, evt.OccurredAt)
		return fmt.Errorf("failed to notify patient of consultation %d: %w", evt.ConsultationID, err)
	}

	n.observe(evt.Type, outcomeSent, evt.OccurredAt)
	n.logger.Debug().
		Int64("consultation_id", evt.ConsultationID).
		Str("status", string(evt.Status)).
		Msg("status change notification sent")
	return nil
}

func (n *Notifier) observe(eventType, outcome string, occurredAt time.Time) {
	if n.metrics == nil {
		return
	}
	n.metrics.EventsHandled.WithLabelValues(eventType, outcome).Inc()
	if !occurredAt.IsZero() {
		n.metrics.EventLatency.WithLabelValues(eventType).Observe(time.Since(occurredAt).Seconds())
	}
}

func statusChangedMessage(evt *model.ConsultationEvent) (string, string) {
	subject := fmt.Sprintf("Consultation #%d: status changed to %s", evt.ConsultationID, evt.Status)

	var b strings.Builder
	if evt.PatientName != "" {
		fmt.Fprintf(&b, "Dear %s,\n\n", evt.PatientName)
	}
	fmt.Fprintf(&b, "The status of your consultation #%d", evt.ConsultationID)
	if !evt.StartTime.IsZero() {
		fmt.Fprintf(&b, " scheduled for %s", evt.StartTime.UTC().Format("2006-01-02 15:04 MST"))
	}
	if evt.PreviousStatus != "" {
		fmt.Fprintf(&b, " changed from %s to %s.\n", evt.PreviousStatus, evt.Status)
	} else {
		fmt.Fprintf(&b, " is now %s.\n", evt.Status)
	}
	return subject, b.String()
}
