package telemetry

import (
	"sync/atomic"
)

type Metrics struct {
	GridUpdates          atomic.Uint64
	Actions              atomic.Uint64
	RejectedEdits        atomic.Uint64
	Renames              atomic.Uint64
	AmbiguousRenames     atomic.Uint64
	UnknownActions       atomic.Uint64
	RoundsCreated        atomic.Uint64
	PuzzlesCreated       atomic.Uint64
	Solves               atomic.Uint64
	ProvisioningCalls    atomic.Uint64
	ProvisioningFailures atomic.Uint64
	TokenRefreshes       atomic.Uint64
	CredentialRejections atomic.Uint64
	LogPostFailures      atomic.Uint64
	PersistFailures      atomic.Uint64
	MailboxRejections    atomic.Uint64
	DigestRuns           atomic.Uint64

	// MailboxPending is a gauge: updates queued behind the one in flight.
	MailboxPending atomic.Uint64
}

func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"grid_updates_total":          m.GridUpdates.Load(),
		"actions_total":               m.Actions.Load(),
		"rejected_edits_total":        m.RejectedEdits.Load(),
		"renames_total":               m.Renames.Load(),
		"ambiguous_renames_total":     m.AmbiguousRenames.Load(),
		"unknown_actions_total":       m.UnknownActions.Load(),
		"rounds_created_total":        m.RoundsCreated.Load(),
		"puzzles_created_total":       m.PuzzlesCreated.Load(),
		"solves_total":                m.Solves.Load(),
		"provisioning_calls_total":    m.ProvisioningCalls.Load(),
		"provisioning_failures_total": m.ProvisioningFailures.Load(),
		"token_refreshes_total":       m.TokenRefreshes.Load(),
		"credential_rejections_total": m.CredentialRejections.Load(),
		"log_post_failures_total":     m.LogPostFailures.Load(),
		"persist_failures_total":      m.PersistFailures.Load(),
		"mailbox_rejections_total":    m.MailboxRejections.Load(),
		"digest_runs_total":           m.DigestRuns.Load(),
		"mailbox_pending":             m.MailboxPending.Load(),
	}
}
