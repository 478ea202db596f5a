// Package inventory creates bundles of QRs, assigns them to agents, moves
// them between agents and derives per-agent and per-bundle counters.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/lifecycle"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/phone"
	"ms-qrinventory/internal/utils"
	"ms-qrinventory/internal/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinBundleSize = 1
	MaxBundleSize = 100

	bundleSequence = "bundle"
)

type ImageRenderer interface {
	Render(qr *models.QR) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, data []byte, folder, resourceType string) (string, error)
}

type Sequencer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
	EnsureSequenceAtLeast(ctx context.Context, name string, floor int64) error
}

type Locker interface {
	Lock(ctx context.Context, key, owner string) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Service struct {
	Store     db.Store
	Images    ImageRenderer
	Uploader  Uploader
	Sequencer Sequencer // optional, falls back to the store
	Locker    Locker    // optional
	Notifier  Notifier
	Logger    *logger.Logger
	Now       func() time.Time

	seqMu sync.Mutex
}

func NewService(store db.Store, images ImageRenderer, uploader Uploader, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Images:   images,
		Uploader: uploader,
		Notifier: notifier,
		Logger:   log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateBundleInput struct {
	QRTypeID   string          `json:"qr_type_id"`
	Count      int             `json:"count"`
	PricePerQR decimal.Decimal `json:"price_per_qr"`
	Issuer     string          `json:"-"`
}

// CreateBundle generates Count UNSOLD QRs with uploaded images and stores
// them with their bundle in one transaction. Images are uploaded first; a
// failed upload leaves nothing behind in the store.
func (s *Service) CreateBundle(ctx context.Context, in CreateBundleInput) (*models.Bundle, error) {
	if in.Count < MinBundleSize || in.Count > MaxBundleSize {
		return nil, apperr.Validation(apperr.ReasonInvalidQuantity,
			fmt.Sprintf("count must be between %d and %d, got %d", MinBundleSize, MaxBundleSize, in.Count))
	}
	if !in.PricePerQR.IsPositive() {
		return nil, apperr.Validation(apperr.ReasonInvalidQuantity,
			fmt.Sprintf("price per qr must be positive, got %s", in.PricePerQR))
	}
	if in.QRTypeID == "" {
		in.QRTypeID = "standard"
	}
	if in.Issuer == "" {
		in.Issuer = "system"
	}

	seq, done, err := s.nextSequence(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	now := s.Now()
	bundle := &models.Bundle{
		BundleID:   utils.FormatBundleID(seq),
		Sequence:   seq,
		QRTypeID:   in.QRTypeID,
		QRCount:    in.Count,
		CreatedBy:  in.Issuer,
		Status:     models.BundleUnassigned,
		PricePerQR: in.PricePerQR,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	qrs, err := s.newQRs(bundle, now)
	if err != nil {
		return nil, err
	}
	if err := s.uploadImages(ctx, bundle.BundleID, qrs); err != nil {
		return nil, err
	}

	err = s.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		if err := tx.InsertBundle(ctx, bundle); err != nil {
			return err
		}
		return tx.InsertQRs(ctx, qrs)
	})
	if err != nil {
		s.Logger.Error("BUNDLE", fmt.Sprintf("create %s failed: %v", bundle.BundleID, err))
		return nil, err
	}

	s.Logger.LogBundle("CREATE", bundle.BundleID, fmt.Sprintf("%d qrs at %s by %s", bundle.QRCount, bundle.PricePerQR, bundle.CreatedBy))

	images := make([]string, 0, len(qrs))
	for _, qr := range qrs {
		images = append(images, qr.ImageURL)
	}
	s.notify(ctx, models.Notification{
		Kind:    models.NotifyBundleCreated,
		Targets: []string{bundle.CreatedBy},
		Title:   fmt.Sprintf("Bundle %s created", bundle.BundleID),
		Body:    fmt.Sprintf("%d QR codes are ready", bundle.QRCount),
		Data: map[string]string{
			"bundle_id":  bundle.BundleID,
			"image_urls": strings.Join(images, ","),
		},
	})
	return bundle, nil
}

func (s *Service) newQRs(bundle *models.Bundle, now time.Time) ([]*models.QR, error) {
	seen := make(map[string]bool, bundle.QRCount)
	qrs := make([]*models.QR, 0, bundle.QRCount)
	for len(qrs) < bundle.QRCount {
		serial, err := lifecycle.NewSerial()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "", err, "failed to generate serial")
		}
		if seen[serial] {
			continue
		}
		seen[serial] = true
		qr := &models.QR{
			ID:                  uuid.NewString(),
			SerialNumber:        serial,
			BundleID:            bundle.BundleID,
			State:               models.QRStateUnsold,
			VoiceCallsAllowed:   true,
			TextMessagesAllowed: true,
			VideoCallsAllowed:   true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		qrs = append(qrs, qr)
		bundle.QRIDs = append(bundle.QRIDs, qr.ID)
	}
	return qrs, nil
}

func (s *Service) uploadImages(ctx context.Context, bundleID string, qrs []*models.QR) error {
	folder := "bundles/" + bundleID
	for _, qr := range qrs {
		png, err := s.Images.Render(qr)
		if err != nil {
			return apperr.Dependency(apperr.ReasonImageRender, err, "failed to render qr image").WithIDs(qr.ID)
		}
		url, err := s.Uploader.Upload(ctx, png, folder, "image")
		if err != nil {
			return apperr.Dependency(apperr.ReasonStorageUpload, err, "failed to upload qr image").WithIDs(qr.ID)
		}
		qr.ImageURL = url
	}
	return nil
}

// nextSequence allocates a bundle sequence. The store fallback reads
// MAX+1, so it holds seqMu until done is called after the insert. A
// fallback allocation also raises the counter past seq so it never hands
// the same value out again.
func (s *Service) nextSequence(ctx context.Context) (int64, func(), error) {
	if s.Sequencer != nil {
		seq, err := s.Sequencer.NextSequence(ctx, bundleSequence)
		if err == nil {
			return seq, func() {}, nil
		}
		s.Logger.Warn("BUNDLE", fmt.Sprintf("sequence counter unavailable, using store: %v", err))
	}
	s.seqMu.Lock()
	seq, err := s.Store.NextBundleSequence(ctx)
	if err != nil {
		s.seqMu.Unlock()
		return 0, nil, err
	}
	if s.Sequencer != nil {
		if err := s.Sequencer.EnsureSequenceAtLeast(ctx, bundleSequence, seq); err != nil {
			s.Logger.Warn("BUNDLE", fmt.Sprintf("could not raise sequence counter to %d: %v", seq, err))
		}
	}
	return seq, s.seqMu.Unlock, nil
}

// AssignBundle hands an UNASSIGNED bundle to an active agent and stamps the
// delivery type on every member QR.
func (s *Service) AssignBundle(ctx context.Context, bundleID, agentRef string, delivery models.DeliveryType) (*models.Bundle, error) {
	if !delivery.Valid() {
		return nil, apperr.Validation(apperr.ReasonInvalidField,
			fmt.Sprintf("delivery type must be DIGITAL or PHYSICAL, got %q", delivery))
	}
	if err := s.requireActiveAgent(ctx, agentRef); err != nil {
		return nil, err
	}
	bundle, err := s.Store.GetBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if bundle.Status != models.BundleUnassigned {
		return nil, alreadyAssigned(bundle)
	}

	now := s.Now()
	err = s.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		n, err := tx.AssignBundle(ctx, bundleID, agentRef, delivery, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return alreadyAssigned(bundle)
		}
		_, err = tx.StampDelivery(ctx, bundleID, delivery, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogBundle("ASSIGN", bundleID, fmt.Sprintf("to %s (%s, %s)", agentRef, delivery, delivery.OrderStatus()))
	s.notify(ctx, models.Notification{
		Kind:    models.NotifyBundleAssigned,
		Targets: []string{agentRef},
		Title:   fmt.Sprintf("Bundle %s assigned", bundleID),
		Body:    fmt.Sprintf("%d QR codes %s", bundle.QRCount, delivery.OrderStatus()),
		Data:    map[string]string{"bundle_id": bundleID, "delivery_type": string(delivery)},
	})
	return s.Store.GetBundle(ctx, bundleID)
}

// TransferBundle moves an ASSIGNED bundle between agents. An empty
// fromAgent means the current assignee. Any RESERVED member blocks the move.
func (s *Service) TransferBundle(ctx context.Context, bundleID, fromAgent, toAgent string) (*models.Bundle, error) {
	if toAgent == "" {
		return nil, apperr.Validation(apperr.ReasonMissingField, "target agent is required").WithIDs("to_agent")
	}
	bundle, err := s.Store.GetBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if fromAgent == "" {
		fromAgent = bundle.AssignedTo
	}
	if bundle.Status != models.BundleAssigned || bundle.AssignedTo != fromAgent {
		return nil, notOwned(bundleID, fromAgent)
	}
	if err := s.requireActiveAgent(ctx, toAgent); err != nil {
		return nil, err
	}
	if toAgent == fromAgent {
		pending, err := s.Store.ListQRIDsByState(ctx, bundleID, models.QRStateReserved)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return nil, transferBlocked(bundleID, pending)
		}
		return bundle, nil
	}

	release, err := s.lock(ctx, "bundle:"+bundleID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		n, err := tx.ReassignBundle(ctx, bundleID, fromAgent, toAgent, s.Now())
		if err != nil {
			return err
		}
		if n == 0 {
			return notOwned(bundleID, fromAgent)
		}
		pending, err := tx.ListQRIDsByState(ctx, bundleID, models.QRStateReserved)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return transferBlocked(bundleID, pending)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogBundle("TRANSFER", bundleID, fmt.Sprintf("%s -> %s", fromAgent, toAgent))
	return s.Store.GetBundle(ctx, bundleID)
}

func transferBlocked(bundleID string, pending []string) error {
	return apperr.Conflict(apperr.ReasonTransferBlocked,
		fmt.Sprintf("bundle %s has %d qrs awaiting payment approval", bundleID, len(pending)),
		pending...)
}

func (s *Service) GetBundle(ctx context.Context, bundleID string) (*models.Bundle, error) {
	return s.Store.GetBundle(ctx, bundleID)
}

func (s *Service) ListBundles(ctx context.Context, filter models.BundleFilter) ([]*models.Bundle, error) {
	return s.Store.ListBundles(ctx, filter)
}

func (s *Service) ListBundleQRs(ctx context.Context, bundleID string) ([]*models.QR, error) {
	if _, err := s.Store.GetBundle(ctx, bundleID); err != nil {
		return nil, err
	}
	return s.Store.ListQRsByBundle(ctx, bundleID)
}

// AgentInventory counts over every bundle currently assigned to the agent.
// TotalQRsSold is the stored counter maintained with each sale.
func (s *Service) AgentInventory(ctx context.Context, agentRef string) (models.Inventory, error) {
	agent, err := s.Store.GetAgent(ctx, agentRef)
	if err != nil {
		return models.Inventory{}, err
	}
	counts, err := s.Store.CountQRStates(ctx, db.QRCountFilter{AgentRef: agentRef})
	if err != nil {
		return models.Inventory{}, err
	}
	bundles, err := s.Store.CountBundlesByAgent(ctx, agentRef)
	if err != nil {
		return models.Inventory{}, err
	}
	inv := models.NewInventory(counts)
	inv.AgentID = agentRef
	inv.BundlesAssigned = bundles
	inv.TotalQRsSold = agent.TotalQRsSold
	return inv, nil
}

func (s *Service) BundleInventory(ctx context.Context, bundleID string) (models.Inventory, error) {
	bundle, err := s.Store.GetBundle(ctx, bundleID)
	if err != nil {
		return models.Inventory{}, err
	}
	counts, err := s.Store.CountQRStates(ctx, db.QRCountFilter{BundleID: bundleID})
	if err != nil {
		return models.Inventory{}, err
	}
	inv := models.NewInventory(counts)
	inv.BundleID = bundleID
	inv.AgentID = bundle.AssignedTo
	if bundle.Status == models.BundleAssigned {
		inv.BundlesAssigned = 1
	}
	inv.TotalQRsSold = inv.SoldQRs
	return inv, nil
}

type RegisterAgentInput struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"omitempty,phone_in"`
}

func (s *Service) RegisterAgent(ctx context.Context, in RegisterAgentInput) (*models.Agent, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Phone != "" {
		in.Phone, _ = phone.Normalize(in.Phone)
	}
	if _, err := s.Store.GetAgent(ctx, in.ID); err == nil {
		return nil, apperr.Conflict(apperr.ReasonAgentExists, "agent already registered", in.ID)
	} else if apperr.CodeOf(err) != apperr.CodeNotFound {
		return nil, err
	}

	now := s.Now()
	agent := &models.Agent{
		ID:        in.ID,
		Name:      in.Name,
		Phone:     in.Phone,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.InsertAgent(ctx, agent); err != nil {
		return nil, err
	}
	s.Logger.Info("AGENT", fmt.Sprintf("registered %s (%s)", agent.ID, agent.Name))
	return agent, nil
}

func (s *Service) SetAgentActive(ctx context.Context, agentRef string, active bool) (*models.Agent, error) {
	n, err := s.Store.SetAgentActive(ctx, agentRef, active, s.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("agent", agentRef)
	}
	return s.Store.GetAgent(ctx, agentRef)
}

func (s *Service) GetAgent(ctx context.Context, agentRef string) (*models.Agent, error) {
	return s.Store.GetAgent(ctx, agentRef)
}

func (s *Service) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	return s.Store.ListAgents(ctx)
}

func (s *Service) requireActiveAgent(ctx context.Context, agentRef string) error {
	if agentRef == "" {
		return apperr.Validation(apperr.ReasonMissingField, "agent is required").WithIDs("agent_id")
	}
	agent, err := s.Store.GetAgent(ctx, agentRef)
	if err != nil {
		return err
	}
	if !agent.Active {
		return apperr.Conflict(apperr.ReasonAgentInactive, "agent is not active", agentRef)
	}
	return nil
}

// lock takes the optional distributed lock for key and returns its release.
func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	owner := uuid.NewString()
	ok, err := s.Locker.Lock(ctx, key, owner)
	if err != nil {
		return nil, apperr.Dependency("", err, "lock service unavailable")
	}
	if !ok {
		return nil, apperr.Conflict(apperr.ReasonInProgress, "another operation holds "+key)
	}
	return func() {
		if err := s.Locker.Unlock(context.Background(), key, owner); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("failed to release %s: %v", key, err))
		}
	}, nil
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.Notifier == nil {
		return
	}
	n.At = s.Now()
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Logger.Warn("NOTIFY", fmt.Sprintf("%s dropped: %v", n.Kind, err))
	}
}

func alreadyAssigned(b *models.Bundle) error {
	return apperr.Conflict(apperr.ReasonBundleAlreadyAssigned,
		fmt.Sprintf("bundle is already assigned to %s, use transfer instead", b.AssignedTo), b.BundleID)
}

func notOwned(bundleID, agentRef string) error {
	return apperr.Forbidden(apperr.ReasonBundleNotOwned,
		fmt.Sprintf("bundle %s is not assigned to %s", bundleID, agentRef)).WithIDs(bundleID)
}
