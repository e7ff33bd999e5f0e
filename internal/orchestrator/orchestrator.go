// Package orchestrator owns session lifecycle: strategy generation,
// parallel image fan-out, incremental persistence, and per-card
// regeneration.
package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coverspark/coverspark/internal/gemini"
	"github.com/coverspark/coverspark/internal/history"
	"github.com/coverspark/coverspark/internal/security"
	"github.com/coverspark/coverspark/pkg/models"
)

var (
	ErrNoActiveSession      = errors.New("no active session")
	ErrGenerationInProgress = errors.New("strategy generation already in progress")
	ErrReferenceLocked      = errors.New("reference images can only change before generation starts")
)

// Phase is the per-session state machine position.
type Phase string

const (
	PhaseDraft             Phase = "draft"
	PhaseStrategiesPending Phase = "strategies_pending"
	PhaseStrategiesReady   Phase = "strategies_ready"
	PhaseSettled           Phase = "settled"
	PhaseErrored           Phase = "errored"
)

// StrategyGenerator is the text-reasoning collaborator contract.
type StrategyGenerator interface {
	Generate(ctx context.Context, topic string) ([]models.StrategyRecommendation, error)
}

// ImageGenerator is the image collaborator contract: one asynchronous
// call that resolves with base64 image bytes or a typed error.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, ref *models.ReferenceImage) (string, error)
}

// HistoryStore is the bounded persistence contract.
type HistoryStore interface {
	Upsert(ctx context.Context, sess *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context) ([]models.SessionSummary, error)
	Delete(ctx context.Context, id string) error
}

// Snapshot is the immutable state the presentation surface observes.
type Snapshot struct {
	Phase           Phase                   `json:"phase"`
	SessionID       string                  `json:"session_id,omitempty"`
	Topic           string                  `json:"topic,omitempty"`
	Cards           []models.ResultCard     `json:"cards,omitempty"`
	ReferenceImages []models.ReferenceImage `json:"reference_images,omitempty"`
	Error           string                  `json:"error,omitempty"`
	Warning         string                  `json:"warning,omitempty"`
}

// Orchestrator coordinates one active session plus any number of
// still-settling background generations. All state is guarded by one
// mutex; async completions merge by (session id, card index,
// generation epoch) so late or superseded tasks are discarded instead
// of clobbering newer state.
type Orchestrator struct {
	mu         sync.Mutex
	store      HistoryStore
	strategies StrategyGenerator
	images     ImageGenerator
	log        *zap.SugaredLogger

	phase        Phase
	currentID    string
	pendingTopic string
	draftRefs    []models.ReferenceImage
	lastError    string
	warning      string

	// sessions holds the canonical in-memory record for every session
	// touched this process; merges go through it so a switched-away
	// session still receives its late completions.
	sessions map[string]*models.Session
	// epochs guards per-card regeneration: a merge only applies when
	// its epoch still matches the card's latest generation.
	epochs   map[string][]uint64
	inflight map[string]int

	lastID int64
	wg     sync.WaitGroup
}

func New(store HistoryStore, strategies StrategyGenerator, images ImageGenerator, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		strategies: strategies,
		images:     images,
		log:        log,
		phase:      PhaseDraft,
		sessions:   make(map[string]*models.Session),
		epochs:     make(map[string][]uint64),
		inflight:   make(map[string]int),
	}
}

// Wait blocks until every background generation task has settled.
// Used on shutdown so the final persistence writes land.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Submit starts a new session for the topic. The session id is
// allocated immediately so persistence and card updates have a stable
// key before any backend call returns. In-flight backend calls for
// earlier sessions are not cancelled; their completions keep merging
// into their own sessions.
func (o *Orchestrator) Submit(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", models.ErrEmptyTopic
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase == PhaseStrategiesPending {
		return "", ErrGenerationInProgress
	}

	refs := slices.Clone(o.draftRefs)
	if s, ok := o.sessions[o.currentID]; ok {
		refs = slices.Clone(s.ReferenceImages)
	}

	id := o.nextSessionIDLocked()
	o.currentID = id
	o.pendingTopic = topic
	o.phase = PhaseStrategiesPending
	o.lastError = ""

	o.wg.Add(1)
	go o.runGeneration(id, topic, refs)

	o.log.Infow("session submitted", "session_id", id, "topic", topic)
	return id, nil
}

func (o *Orchestrator) runGeneration(id, topic string, refs []models.ReferenceImage) {
	defer o.wg.Done()

	// Backend calls outlive the HTTP request that triggered them;
	// there is no cancellation of in-flight generations.
	ctx := context.Background()

	recs, err := o.strategies.Generate(ctx, topic)

	o.mu.Lock()
	if o.currentID != id {
		// The user moved on before strategies arrived. Nothing was
		// persisted for this id, so the whole attempt is dropped.
		o.mu.Unlock()
		o.log.Infow("discarding strategies for superseded session", "session_id", id)
		return
	}
	if err != nil {
		// Atomic failure: no partial session is recorded.
		o.phase = PhaseErrored
		o.lastError = gemini.ExtractMessage(err)
		o.mu.Unlock()
		o.log.Errorw("strategy generation failed", "session_id", id, "error", err)
		return
	}

	sess := &models.Session{
		ID:              id,
		Topic:           topic,
		CreatedAt:       time.Now(),
		Cards:           make([]models.ResultCard, 0, len(recs)),
		ReferenceImages: refs,
	}
	for _, rec := range recs {
		card := models.NewResultCard(rec)
		card.MarkInFlight("")
		sess.Cards = append(sess.Cards, card)
	}

	o.sessions[id] = sess
	o.epochs[id] = make([]uint64, len(sess.Cards))
	o.inflight[id] = len(sess.Cards)
	o.phase = PhaseStrategiesReady
	o.pendingTopic = ""
	o.persistLocked(sess)

	prompts := make([]string, len(sess.Cards))
	for i := range sess.Cards {
		prompts[i] = sess.Cards[i].ActivePrompt
	}
	var ref *models.ReferenceImage
	if r := sess.PrimaryReference(); r != nil {
		refCopy := *r
		ref = &refCopy
	}
	o.mu.Unlock()

	o.log.Infow("strategies ready", "session_id", id, "cards", len(prompts))

	var eg errgroup.Group
	for i := range prompts {
		eg.Go(func() error {
			img, genErr := o.images.Generate(ctx, prompts[i], ref)
			o.merge(id, i, 0, img, genErr)
			return nil
		})
	}
	eg.Wait()

	// Final settle write from the current in-memory state, never a
	// snapshot captured before the tasks ran.
	o.mu.Lock()
	if s, ok := o.sessions[id]; ok {
		if o.currentID == id && o.inflight[id] == 0 {
			o.phase = PhaseSettled
		}
		o.persistLocked(s)
		o.log.Infow("session settled", "session_id", id)
	}
	o.mu.Unlock()
}

// merge applies one task completion to its card by index. Completions
// for deleted sessions or superseded generations are dropped silently.
func (o *Orchestrator) merge(id string, index int, epoch uint64, img string, genErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.sessions[id]
	if !ok {
		o.log.Infow("discarding completion for removed session", "session_id", id, "card", index)
		return
	}
	if n := o.inflight[id]; n > 0 {
		o.inflight[id] = n - 1
	}
	if index < 0 || index >= len(sess.Cards) || o.epochs[id][index] != epoch {
		o.log.Infow("discarding superseded completion", "session_id", id, "card", index)
		return
	}

	card := &sess.Cards[index]
	if genErr != nil {
		card.MarkFailed(gemini.ExtractMessage(genErr))
		o.log.Warnw("card generation failed", "session_id", id, "card", index, "error", genErr)
	} else {
		card.MarkReady(img)
		o.log.Infow("card generation ready", "session_id", id, "card", index)
	}

	if o.currentID == id && o.inflight[id] == 0 && o.phase == PhaseStrategiesReady {
		o.phase = PhaseSettled
	}
	o.persistLocked(sess)
}

// RegenerateCard re-runs image generation for one card with the given
// prompt, independent of its siblings. An empty prompt reuses the
// card's current active prompt.
func (o *Orchestrator) RegenerateCard(ctx context.Context, index int, prompt string) error {
	o.mu.Lock()

	sess, ok := o.sessions[o.currentID]
	if !ok {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	if index < 0 || index >= len(sess.Cards) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %d", models.ErrCardIndex, index)
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = sess.Cards[index].ActivePrompt
	}

	id := sess.ID
	o.epochs[id][index]++
	epoch := o.epochs[id][index]
	sess.Cards[index].MarkInFlight(prompt)
	o.inflight[id]++
	if o.phase == PhaseSettled {
		o.phase = PhaseStrategiesReady
	}

	var ref *models.ReferenceImage
	if r := sess.PrimaryReference(); r != nil {
		refCopy := *r
		ref = &refCopy
	}
	o.mu.Unlock()

	o.log.Infow("card regeneration started", "session_id", id, "card", index)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		img, err := o.images.Generate(context.Background(), prompt, ref)
		o.merge(id, index, epoch, img, err)
	}()
	return nil
}

// UpdatePrompt edits a card's active prompt without touching its
// status; the new prompt takes effect on the next regeneration.
func (o *Orchestrator) UpdatePrompt(index int, prompt string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.sessions[o.currentID]
	if !ok {
		return ErrNoActiveSession
	}
	if index < 0 || index >= len(sess.Cards) {
		return fmt.Errorf("%w: %d", models.ErrCardIndex, index)
	}

	sess.Cards[index].ActivePrompt = prompt
	o.persistLocked(sess)
	return nil
}

// SelectSession makes a stored session the observed one. Switching
// discards nothing; a session reloaded from history has any statuses
// left over from an interrupted run normalized to Failed.
func (o *Orchestrator) SelectSession(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.sessions[id]; !ok {
		sess, err := o.store.Get(ctx, id)
		if err != nil {
			return err
		}
		sess.NormalizeStatuses()
		o.sessions[id] = sess
		o.epochs[id] = make([]uint64, len(sess.Cards))
	}

	o.currentID = id
	o.lastError = ""
	if o.inflight[id] > 0 {
		o.phase = PhaseStrategiesReady
	} else {
		o.phase = PhaseSettled
	}
	return nil
}

// DeleteSession removes a session from history. Deleting the active
// session returns the orchestrator to an empty draft.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.Delete(ctx, id); err != nil {
		return err
	}
	delete(o.sessions, id)
	delete(o.epochs, id)
	delete(o.inflight, id)

	if o.currentID == id {
		o.resetToDraftLocked()
	}
	o.log.Infow("session deleted", "session_id", id)
	return nil
}

// NewDraft resets the observed state to an empty draft without
// deleting anything from history.
func (o *Orchestrator) NewDraft() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetToDraftLocked()
}

func (o *Orchestrator) resetToDraftLocked() {
	o.currentID = ""
	o.pendingTopic = ""
	o.phase = PhaseDraft
	o.draftRefs = nil
	o.lastError = ""
	o.warning = ""
}

// AttachReference validates and attaches a reference image to the
// draft, replacing any previous one wholesale. Once generation has
// started the session's references are immutable.
func (o *Orchestrator) AttachReference(data []byte, mediaType string) error {
	if err := security.ValidateReference(data, mediaType); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseDraft && o.phase != PhaseErrored {
		return ErrReferenceLocked
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	o.draftRefs = []models.ReferenceImage{{
		Preview:   fmt.Sprintf("data:%s;base64,%s", mediaType, encoded),
		Data:      encoded,
		MediaType: mediaType,
	}}
	return nil
}

// AttachReferenceDataURL accepts the browser FileReader form.
func (o *Orchestrator) AttachReferenceDataURL(dataURL string) error {
	mediaType, data, err := security.ParseDataURL(dataURL)
	if err != nil {
		return err
	}
	return o.AttachReference(data, mediaType)
}

// ClearReference drops the draft's reference image.
func (o *Orchestrator) ClearReference() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseDraft && o.phase != PhaseErrored {
		return ErrReferenceLocked
	}
	o.draftRefs = nil
	return nil
}

// Snapshot returns a deep copy of the observed state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Phase:   o.phase,
		Error:   o.lastError,
		Warning: o.warning,
	}

	if sess, ok := o.sessions[o.currentID]; ok {
		clone := sess.Clone()
		snap.SessionID = clone.ID
		snap.Topic = clone.Topic
		snap.Cards = clone.Cards
		snap.ReferenceImages = clone.ReferenceImages
		return snap
	}

	if o.currentID != "" {
		// Strategies still pending (or failed): id and topic exist,
		// cards do not.
		snap.SessionID = o.currentID
		snap.Topic = o.pendingTopic
	}
	snap.ReferenceImages = slices.Clone(o.draftRefs)
	return snap
}

// History lists stored sessions, most recent first.
func (o *Orchestrator) History(ctx context.Context) ([]models.SessionSummary, error) {
	return o.store.List(ctx)
}

// CardImage returns the stored base64 payload for one card's image.
func (o *Orchestrator) CardImage(ctx context.Context, sessionID string, index int) (string, error) {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if ok {
		sess = sess.Clone()
	}
	o.mu.Unlock()

	if !ok {
		var err error
		sess, err = o.store.Get(ctx, sessionID)
		if err != nil {
			return "", err
		}
	}

	if index < 0 || index >= len(sess.Cards) {
		return "", fmt.Errorf("%w: %d", models.ErrCardIndex, index)
	}
	if sess.Cards[index].GeneratedImage == "" {
		return "", fmt.Errorf("card %d has no generated image", index)
	}
	return sess.Cards[index].GeneratedImage, nil
}

// persistLocked writes the session through the bounded store. Storage
// failures are soft: the warning surfaces to the user while in-memory
// state stays authoritative, and the next mutation retries implicitly.
func (o *Orchestrator) persistLocked(sess *models.Session) {
	if err := o.store.Upsert(context.Background(), sess); err != nil {
		o.warning = err.Error()
		if errors.Is(err, history.ErrCapacityExceeded) {
			o.log.Warnw("history write rejected", "session_id", sess.ID, "error", err)
		} else {
			o.log.Errorw("history write failed", "session_id", sess.ID, "error", err)
		}
		return
	}
	o.warning = ""
}

// nextSessionIDLocked allocates a time-derived id that stays
// monotonic even when two submissions land in the same millisecond.
func (o *Orchestrator) nextSessionIDLocked() string {
	id := time.Now().UnixMilli()
	if id <= o.lastID {
		id = o.lastID + 1
	}
	o.lastID = id
	return strconv.FormatInt(id, 10)
}
