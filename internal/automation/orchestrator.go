// Package automation drives the follow-up actions taken when a call is
// answered by a machine: voicemail drop, delayed SMS follow-up, and
// callback scheduling. Every step is best-effort and independently
// fault-tolerant, so one failed side effect never blocks the rest.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/models"
	"github.com/callforge/callforge/internal/session"
	"github.com/callforge/callforge/internal/telnyx"
	"github.com/callforge/callforge/internal/timing"
)

// hangupGrace is how long the voicemail audio is given to finish playing
// before the call leg is torn down. A hangup on an already-ended call is
// a provider-side no-op, so the timer is never cancelled.
const hangupGrace = 30 * time.Second

// defaultSMSDelay applies when settings carry no explicit follow-up delay.
const defaultSMSDelay = 10 * time.Second

// callbackNote is the fixed annotation on auto-scheduled callbacks.
const callbackNote = "Auto-scheduled: answering machine detected"

// ControlClient is the slice of the provider client the orchestrator
// issues commands through.
type ControlClient interface {
	PlayAudio(ctx context.Context, callControlID, audioURL string) error
	Hangup(ctx context.Context, callControlID string) error
	SendSMS(ctx context.Context, from, to, text string) (*telnyx.SMSResult, error)
}

// Stores bundles the persistence gateways the orchestrator writes to.
type Stores struct {
	Settings   database.AutomationSettingsRepository
	Voicemails database.VoicemailRepository
	Drops      database.VoicemailDropRepository
	Templates  database.SMSTemplateRepository
	SMSLogs    database.SMSLogRepository
	Callbacks  database.ScheduledCallbackRepository
	Prospects  database.ProspectRepository
}

// Orchestrator runs the machine-detection automation sequence.
type Orchestrator struct {
	stores  Stores
	control ControlClient
	clock   timing.Clock
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(stores Stores, control ControlClient, clock timing.Clock, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		stores:  stores,
		control: control,
		clock:   clock,
		logger:  logger,
	}
}

// HandleMachineDetected runs the automation sequence for a call answered
// by a machine. Sessions without a resolvable owner are skipped. The
// passed session is a snapshot; the orchestrator never mutates registry
// state.
func (o *Orchestrator) HandleMachineDetected(ctx context.Context, sess *session.CallSession) {
	if sess.UserID == "" {
		o.logger.Debug("automation skipped, no owning user", "call_control_id", sess.CallControlID)
		return
	}

	settings, err := o.stores.Settings.GetByUserID(ctx, sess.UserID)
	if err != nil {
		o.logger.Error("loading automation settings", "user_id", sess.UserID, "error", err)
		return
	}
	if settings == nil || !settings.AutoVoicemailDrop || settings.DefaultVoicemailID == nil {
		o.logger.Debug("voicemail drop disabled", "user_id", sess.UserID)
		return
	}

	drop := o.dropVoicemail(ctx, sess, settings)

	if settings.AutoSMSFollowup && settings.DefaultSMSTemplateID != nil && prospectNumber(sess) != "" {
		o.scheduleSMSFollowup(sess, settings, drop)
	}

	if settings.AutoCallback {
		o.scheduleCallback(ctx, sess, settings)
	}

	// Give the voicemail audio time to play out, then tear the leg down.
	// The call usually ends on its own first; the redundant hangup is
	// harmless.
	id := sess.CallControlID
	o.clock.AfterFunc(hangupGrace, func() {
		hctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.control.Hangup(hctx, id); err != nil {
			o.logger.Debug("post-drop hangup failed", "call_control_id", id, "error", err)
		}
	})
}

// dropVoicemail plays the configured voicemail into the call, records
// the drop, and bumps the asset's usage counter. Returns the drop record
// (possibly unsaved) so the SMS follow-up can link back to it.
func (o *Orchestrator) dropVoicemail(ctx context.Context, sess *session.CallSession, settings *models.AutomationSettings) *models.VoicemailDrop {
	drop := &models.VoicemailDrop{
		CallControlID: sess.CallControlID,
		VoicemailID:   *settings.DefaultVoicemailID,
		UserID:        sess.UserID,
		Status:        "dropped",
	}

	vm, err := o.stores.Voicemails.GetByID(ctx, *settings.DefaultVoicemailID)
	if err != nil {
		o.logger.Error("loading voicemail asset", "voicemail_id", *settings.DefaultVoicemailID, "error", err)
	}
	if vm != nil {
		if err := o.control.PlayAudio(ctx, sess.CallControlID, vm.AudioURL); err != nil {
			o.logger.Error("playing voicemail audio", "call_control_id", sess.CallControlID, "error", err)
		}
	}

	if err := o.stores.Drops.Create(ctx, drop); err != nil {
		o.logger.Error("recording voicemail drop", "call_control_id", sess.CallControlID, "error", err)
	}
	if err := o.stores.Voicemails.IncrementUsage(ctx, *settings.DefaultVoicemailID); err != nil {
		o.logger.Error("incrementing voicemail usage", "voicemail_id", *settings.DefaultVoicemailID, "error", err)
	}

	o.logger.Info("voicemail dropped",
		"call_control_id", sess.CallControlID,
		"voicemail_id", *settings.DefaultVoicemailID,
		"user_id", sess.UserID,
	)
	return drop
}

// scheduleSMSFollowup sends the templated follow-up after the configured
// delay and links the resulting SMS log back onto the drop record.
func (o *Orchestrator) scheduleSMSFollowup(sess *session.CallSession, settings *models.AutomationSettings, drop *models.VoicemailDrop) {
	delay := defaultSMSDelay
	if settings.SMSDelaySeconds > 0 {
		delay = time.Duration(settings.SMSDelaySeconds) * time.Second
	}

	templateID := *settings.DefaultSMSTemplateID
	userID := sess.UserID
	dropID := drop.ID
	to := prospectNumber(sess)
	from := ownNumber(sess)

	o.clock.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		tmpl, err := o.stores.Templates.GetByID(ctx, templateID)
		if err != nil || tmpl == nil {
			o.logger.Error("loading sms template", "template_id", templateID, "error", err)
			return
		}

		body := RenderTemplate(tmpl.Body, o.templateVars(ctx, userID, to))

		smsLog := &models.SMSLog{
			UserID:     userID,
			ToNumber:   to,
			Body:       body,
			TemplateID: &templateID,
			Status:     "sent",
		}

		res, err := o.control.SendSMS(ctx, from, to, body)
		if err != nil {
			o.logger.Error("sending follow-up sms", "to", to, "error", err)
			smsLog.Status = "failed"
		} else {
			smsLog.ProviderMessageID = res.MessageID
		}

		if err := o.stores.SMSLogs.Create(ctx, smsLog); err != nil {
			o.logger.Error("recording sms log", "to", to, "error", err)
			return
		}
		if dropID != 0 {
			if err := o.stores.Drops.LinkSMS(ctx, dropID, smsLog.ID); err != nil {
				o.logger.Error("linking sms to drop", "drop_id", dropID, "error", err)
			}
		}

		o.logger.Info("follow-up sms processed", "to", to, "status", smsLog.Status)
	})
}

// scheduleCallback inserts a future dial-back when the prospect is known.
func (o *Orchestrator) scheduleCallback(ctx context.Context, sess *session.CallSession, settings *models.AutomationSettings) {
	phone := prospectNumber(sess)
	if phone == "" {
		return
	}

	prospect, err := o.stores.Prospects.GetByPhone(ctx, sess.UserID, phone)
	if err != nil {
		o.logger.Error("resolving prospect for callback", "phone", phone, "error", err)
		return
	}
	if prospect == nil {
		o.logger.Debug("callback skipped, unknown prospect", "phone", phone)
		return
	}

	delay := time.Duration(settings.CallbackDelayHours) * time.Hour
	cb := &models.ScheduledCallback{
		UserID:       sess.UserID,
		ProspectID:   &prospect.ID,
		PhoneNumber:  phone,
		ScheduledFor: o.clock.Now().Add(delay),
		Notes:        callbackNote,
	}
	if err := o.stores.Callbacks.Create(ctx, cb); err != nil {
		o.logger.Error("scheduling callback", "phone", phone, "error", err)
		return
	}

	o.logger.Info("callback scheduled",
		"phone", phone,
		"scheduled_for", cb.ScheduledFor,
	)
}

// templateVars resolves substitution variables for the SMS template from
// the prospect record when one exists.
func (o *Orchestrator) templateVars(ctx context.Context, userID, phone string) map[string]string {
	vars := map[string]string{"phone": phone}
	prospect, err := o.stores.Prospects.GetByPhone(ctx, userID, phone)
	if err != nil {
		o.logger.Error("resolving prospect for template", "phone", phone, "error", err)
		return vars
	}
	if prospect == nil {
		return vars
	}
	vars["firstName"] = prospect.FirstName
	vars["lastName"] = prospect.LastName
	vars["company"] = prospect.Company
	if prospect.FirstName != "" || prospect.LastName != "" {
		vars["fullName"] = strings.TrimSpace(fmt.Sprintf("%s %s", prospect.FirstName, prospect.LastName))
	}
	return vars
}

// prospectNumber is the far-end number: the callee on an outbound call,
// the caller on an inbound one.
func prospectNumber(sess *session.CallSession) string {
	if sess.Direction == session.DirectionInbound {
		return sess.From
	}
	return sess.To
}

// ownNumber is the near-end number used as the SMS sender.
func ownNumber(sess *session.CallSession) string {
	if sess.Direction == session.DirectionInbound {
		return sess.To
	}
	return sess.From
}
