// Package routing resolves an inbound call to the number it should be
// forwarded to, using the call history recorded against each QR.
package routing

import (
	"context"
	"fmt"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/config"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/phone"
)

type Rule string

const (
	RuleSuffix        Rule = "suffix"
	RuleOwnerCallback Rule = "owner_callback"
	RuleActiveWindow  Rule = "active_call_window"
	RuleLastConnected Rule = "last_connected"
	RuleNone          Rule = "none"
)

const (
	ReasonNoSuffixMatch = "no_qr_with_suffix"
	ReasonNoMatch       = "no_match"

	defaultSuffixDigits = 10
)

// Result is either a destination or NoMatch with a Reason.
type Result struct {
	Destination string `json:"destination,omitempty"`
	Dial        string `json:"dial,omitempty"`
	Rule        Rule   `json:"rule"`
	QRID        string `json:"qr_id,omitempty"`
	NoMatch     bool   `json:"no_match,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type Resolver struct {
	Store  db.Store
	Config config.RoutingConfig
	Logger *logger.Logger
	Now    func() time.Time
}

func NewResolver(store db.Store, cfg config.RoutingConfig, log *logger.Logger) *Resolver {
	if cfg.CallLogRetention < cfg.OwnerWindow {
		cfg.CallLogRetention = cfg.OwnerWindow
	}
	if cfg.SuffixDigits <= 0 {
		cfg.SuffixDigits = defaultSuffixDigits
	}
	if cfg.CandidateScanSize <= 0 {
		cfg.CandidateScanSize = 10
	}
	return &Resolver{
		Store:  store,
		Config: cfg,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// ResolveInboundCall walks the rules in priority order and stops at the
// first match. A suffix that matches nothing ends resolution.
func (r *Resolver) ResolveInboundCall(ctx context.Context, did, from, suffix string) (Result, error) {
	if err := validateSuffix(suffix, r.Config.SuffixDigits); err != nil {
		return Result{}, err
	}
	now := r.Now()
	caller := normalizeOrRaw(from)

	var (
		res Result
		ok  bool
		err error
	)
	if suffix != "" {
		res, err = r.bySuffix(ctx, suffix, caller, now)
		r.logResult(did, from, res, err)
		return res, err
	}

	steps := []func(context.Context, string, time.Time) (Result, bool, error){
		r.ownerCallback,
		r.activeWindow,
		r.lastConnected,
	}
	for _, step := range steps {
		res, ok, err = step(ctx, caller, now)
		if err != nil {
			r.logResult(did, from, res, err)
			return Result{}, err
		}
		if ok {
			r.logResult(did, from, res, nil)
			return res, nil
		}
	}
	res = Result{Rule: RuleNone, NoMatch: true, Reason: ReasonNoMatch}
	r.logResult(did, from, res, nil)
	return res, nil
}

func (r *Resolver) bySuffix(ctx context.Context, suffix, caller string, now time.Time) (Result, error) {
	qr, err := r.Store.FindVoiceQRBySuffix(ctx, suffix)
	if err != nil {
		return Result{}, err
	}
	if qr == nil {
		return Result{Rule: RuleSuffix, NoMatch: true, Reason: ReasonNoSuffixMatch}, nil
	}
	entry := &models.CallLogEntry{QRID: qr.ID, At: now, Connected: true, FromNumber: caller}
	if err := r.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		return tx.AppendCallLog(ctx, entry, now.Add(-r.Config.CallLogRetention))
	}); err != nil {
		return Result{}, err
	}
	return routeTo(RuleSuffix, qr.ID, qr.CustomerPhone), nil
}

// ownerCallback routes a QR owner calling in back to whoever reached one of
// their QRs within the owner window.
func (r *Resolver) ownerCallback(ctx context.Context, caller string, now time.Time) (Result, bool, error) {
	if caller == "" {
		return Result{}, false, nil
	}
	ids, err := r.Store.ListVoiceQRIDsByPhone(ctx, caller)
	if err != nil || len(ids) == 0 {
		return Result{}, false, err
	}
	entry, err := r.Store.FindRecentConnectedCall(ctx, ids, now.Add(-r.Config.OwnerWindow), caller)
	if err != nil || entry == nil {
		return Result{}, false, err
	}
	return routeTo(RuleOwnerCallback, entry.QRID, entry.FromNumber), true, nil
}

// activeWindow pairs the inbound leg with an unanswered outbound attempt.
// Each claim is conditional, so a candidate taken by a concurrent leg is
// skipped in favour of the next one.
func (r *Resolver) activeWindow(ctx context.Context, caller string, now time.Time) (Result, bool, error) {
	candidates, err := r.Store.ListActiveWindowCandidates(ctx, now.Add(-r.Config.ActiveCallWindow), r.Config.CandidateScanSize)
	if err != nil {
		return Result{}, false, err
	}
	for _, c := range candidates {
		var qr *models.QR
		err := r.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
			n, err := tx.ClaimCallLog(ctx, c.ID, caller, now)
			if err != nil || n == 0 {
				return err
			}
			qr, err = tx.GetQR(ctx, c.QRID)
			return err
		})
		if err != nil {
			return Result{}, false, err
		}
		if qr != nil {
			return routeTo(RuleActiveWindow, qr.ID, qr.CustomerPhone), true, nil
		}
		r.Logger.Debug("CALL", fmt.Sprintf("call log %d already claimed, trying next", c.ID))
	}
	return Result{}, false, nil
}

func (r *Resolver) lastConnected(ctx context.Context, _ string, _ time.Time) (Result, bool, error) {
	qr, err := r.Store.LatestConnectedQR(ctx)
	if err != nil || qr == nil {
		return Result{}, false, err
	}
	return routeTo(RuleLastConnected, qr.ID, qr.CustomerPhone), true, nil
}

// RecordOutboundCallAttempt opens the active-call window for a QR.
func (r *Resolver) RecordOutboundCallAttempt(ctx context.Context, qrID string) (*models.CallLogEntry, error) {
	qr, err := r.Store.GetQR(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if !qr.VoiceCallsAllowed {
		return nil, apperr.Forbidden(apperr.ReasonVoiceCallsDisabled, "voice calls are disabled for this qr").WithIDs(qrID)
	}
	now := r.Now()
	entry := &models.CallLogEntry{QRID: qrID, At: now}
	err = r.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		return tx.AppendCallLog(ctx, entry, now.Add(-r.Config.CallLogRetention))
	})
	if err != nil {
		return nil, err
	}
	r.Logger.LogCall("outbound", qrID, fmt.Sprintf("attempt %d recorded", entry.ID))
	return entry, nil
}

func (r *Resolver) CallHistory(ctx context.Context, qrID string) ([]*models.CallLogEntry, error) {
	if _, err := r.Store.GetQR(ctx, qrID); err != nil {
		return nil, err
	}
	return r.Store.ListCallLogs(ctx, qrID)
}

func (r *Resolver) logResult(did, from string, res Result, err error) {
	switch {
	case err != nil:
		r.Logger.Error("CALL", fmt.Sprintf("resolve did=%s from=%s failed: %v", did, from, err))
	case res.NoMatch:
		r.Logger.LogCall(string(res.Rule), "-", fmt.Sprintf("did=%s from=%s no match (%s)", did, from, res.Reason))
	default:
		r.Logger.LogCall(string(res.Rule), res.QRID, fmt.Sprintf("did=%s from=%s -> %s", did, from, res.Dial))
	}
}

func routeTo(rule Rule, qrID, number string) Result {
	national := normalizeOrRaw(number)
	return Result{
		Destination: national,
		Dial:        phone.Dial(national),
		Rule:        rule,
		QRID:        qrID,
	}
}

func normalizeOrRaw(raw string) string {
	if n, ok := phone.Normalize(raw); ok {
		return n
	}
	return raw
}

func validateSuffix(suffix string, maxDigits int) error {
	if len(suffix) > maxDigits {
		return apperr.Validation(apperr.ReasonInvalidField,
			fmt.Sprintf("suffix must be at most %d digits", maxDigits)).WithIDs("suffix")
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return apperr.Validation(apperr.ReasonInvalidField, "suffix must contain digits only").WithIDs("suffix")
		}
	}
	return nil
}
