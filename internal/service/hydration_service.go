package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/internal/localstore"
	"github.com/limbo/hydrosync/internal/metrics"
	"github.com/limbo/hydrosync/pkg/entity"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateSynchronized
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateSynchronized:
		return "synchronized"
	default:
		return "anonymous"
	}
}

const (
	ActivityLow      = "low"
	ActivityModerate = "moderate"
	ActivityHigh     = "high"

	ClimateCold      = "cold"
	ClimateTemperate = "temperate"
	ClimateHot       = "hot"
)

type ProfileField string

const (
	FieldName          ProfileField = "name"
	FieldGender        ProfileField = "gender"
	FieldHeight        ProfileField = "height"
	FieldWeight        ProfileField = "weight"
	FieldAge           ProfileField = "age"
	FieldWakeUpTime    ProfileField = "wakeUpTime"
	FieldBedTime       ProfileField = "bedTime"
	FieldActivityLevel ProfileField = "activityLevel"
	FieldClimate       ProfileField = "climate"
	FieldDailyGoal     ProfileField = "dailyGoal"
	FieldCupSize       ProfileField = "cupSize"
	FieldIsCompleted   ProfileField = "isCompleted"
)

type NewDrinkLog struct {
	Volume       int    `validate:"gt=0,lte=5000"`
	DrinkType    string `validate:"required,max=50"`
	DefaultCupID string `validate:"max=100"`
	// Both default to the current moment
	Date string `validate:"omitempty,datetime=2006-01-02"`
	Time string `validate:"omitempty,datetime=15:04:05"`
}

type OnboardingAnswers struct {
	Name          string  `validate:"max=100"`
	Gender        string  `validate:"omitempty,oneof=male female other"`
	Height        float64 `validate:"gte=0,lte=300"`
	Weight        float64 `validate:"gt=0,lte=500"`
	Age           int     `validate:"gte=0,lte=150"`
	WakeUpTime    string  `validate:"required,clock"`
	BedTime       string  `validate:"required,clock"`
	ActivityLevel string  `validate:"required,oneof=low moderate high"`
	Climate       string  `validate:"required,oneof=cold temperate hot"`
	// Zero means use RecommendedDailyGoal
	DailyGoal int `validate:"gte=0,lte=20000"`
	// Zero keeps the current cup size
	CupSize int `validate:"gte=0,lte=5000"`
}

type ProfileEvent struct {
	Profile entity.Profile
	State   State
}

type Options struct {
	Notifier Notifier
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Now      func() time.Time
}

// HydrationService owns the session state of one client: the current profile, who is signed in
// and how the local copy relates to the remote one. Independent instances share nothing.
type HydrationService struct {
	local    LocalStore
	remote   RemoteStore
	auth     AuthProvider
	notifier Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time

	// serializes reconciliation runs and the remote part of log uploads
	syncMu sync.Mutex

	// guards the fields below, never held during I/O
	mu      sync.RWMutex
	state   State
	session *entity.Identity
	profile *entity.Profile
	subs    map[int]chan ProfileEvent
	nextSub int

	unsubscribeAuth func()
}

func NewHydrationService(local LocalStore, remote RemoteStore, auth AuthProvider, opts Options) *HydrationService {
	if local == nil {
		log.Fatal("provided nil local store")
	}
	if remote == nil {
		log.Fatal("provided nil remote store")
	}
	if auth == nil {
		log.Fatal("provided nil auth provider")
	}
	InitValidator()
	hs := &HydrationService{
		local:    local,
		remote:   remote,
		auth:     auth,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		subs:     make(map[int]chan ProfileEvent),
	}
	if hs.notifier == nil {
		hs.notifier = noopNotifier{}
	}
	if hs.logger == nil {
		hs.logger = slog.Default()
	}
	hs.logger = hs.logger.With(slog.String("component", "hydration"))
	if hs.now == nil {
		hs.now = time.Now
	}
	hs.unsubscribeAuth = auth.OnIdentityChanged(hs.identityChanged)
	return hs
}

// Start loads the device copy and, when a session exists, reconciles it with the remote store.
// Remote failures only mark the data as pending sync.
func (hs *HydrationService) Start(ctx context.Context) error {
	today := hs.today()
	p := hs.local.GetProfile()
	if p == nil {
		fresh := entity.DefaultProfile(hs.local.LocalUserID(), today)
		p = &fresh
	}
	reconciled := ReconcileDailyCycle(*p, today)
	if err := hs.local.SaveProfile(reconciled); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	hs.mu.Lock()
	hs.profile = &reconciled
	hs.mu.Unlock()
	hs.metrics.SetPendingSync(hs.local.GetFlags().PendingSync)

	identity, ok := hs.auth.Current()
	if !ok {
		hs.publish()
		hs.notifier.ProfileChanged(reconciled)
		return nil
	}
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	if err := hs.reconcileSignIn(ctx, identity, "start"); err != nil {
		hs.logger.Warn("reconciliation at start failed, continuing with local data",
			slog.String("error", err.Error()))
	}
	return nil
}

// Close detaches the service from the auth provider and ends every subscription.
func (hs *HydrationService) Close() {
	if hs.unsubscribeAuth != nil {
		hs.unsubscribeAuth()
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for id, ch := range hs.subs {
		close(ch)
		delete(hs.subs, id)
	}
}

func (hs *HydrationService) State() State {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.state
}

func (hs *HydrationService) Session() (entity.Identity, bool) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if hs.session == nil {
		return entity.Identity{}, false
	}
	return *hs.session, true
}

// Profile returns the current profile with the daily cycle applied.
func (hs *HydrationService) Profile() (entity.Profile, bool) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if hs.profile == nil {
		return entity.Profile{}, false
	}
	return ReconcileDailyCycle(*hs.profile, hs.today()), true
}

// Logs returns the logs of the current owner, newest first.
func (hs *HydrationService) Logs() []entity.DrinkLog {
	logs := hs.visibleLogs()
	entity.SortDrinkLogs(logs)
	return logs
}

func (hs *HydrationService) LogsForDate(date string) []entity.DrinkLog {
	logs := make([]entity.DrinkLog, 0)
	for _, l := range hs.Logs() {
		if l.Date == date {
			logs = append(logs, l)
		}
	}
	return logs
}

func (hs *HydrationService) Flags() entity.SyncFlags {
	return hs.local.GetFlags()
}

// Subscribe returns a channel of profile changes. Slow readers miss events rather than
// blocking the service. Call the returned func to unsubscribe.
func (hs *HydrationService) Subscribe() (<-chan ProfileEvent, func()) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	id := hs.nextSub
	hs.nextSub++
	ch := make(chan ProfileEvent, 8)
	hs.subs[id] = ch
	return ch, func() {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		if c, ok := hs.subs[id]; ok {
			close(c)
			delete(hs.subs, id)
		}
	}
}

func (hs *HydrationService) AddLog(ctx context.Context, req NewDrinkLog) (entity.DrinkLog, error) {
	if err := validate.Struct(req); err != nil {
		return entity.DrinkLog{}, validationError(err, errorvalues.ErrInvalidLog)
	}
	if _, ok := hs.Profile(); !ok {
		hs.logger.Error("adding log without a profile")
		return entity.DrinkLog{}, errorvalues.ErrNoProfile
	}
	now := hs.now()
	l := entity.DrinkLog{
		UserID:       hs.owner(),
		Date:         req.Date,
		Time:         req.Time,
		Volume:       req.Volume,
		DrinkType:    strings.TrimSpace(req.DrinkType),
		DefaultCupID: req.DefaultCupID,
		CreatedAt:    now.UnixMilli(),
	}
	if l.Date == "" {
		l.Date = now.Format(entity.DateFormat)
	}
	if l.Time == "" {
		l.Time = now.Format(entity.TimeFormat)
	}
	stored, err := hs.local.AppendLog(l)
	if err != nil {
		return entity.DrinkLog{}, fmt.Errorf("storing log: %w", err)
	}
	p, err := hs.refreshIntake()
	if err != nil {
		return stored, err
	}

	if identity, ok := hs.syncedIdentity(); ok {
		hs.syncMu.Lock()
		// a reconciliation that ran meanwhile may have uploaded it already
		if hs.hasLog(stored.ID) {
			uploaded, err := hs.remote.AppendLog(ctx, identity.UserID, stored)
			if err != nil {
				hs.remoteFailed("append_log", err)
			} else {
				hs.metrics.RecordUploads(1)
				hs.adoptRemoteID(stored.ID, uploaded.ID)
				stored.ID = uploaded.ID
			}
		}
		hs.syncMu.Unlock()
		hs.mirrorProfile(ctx, p)
	}
	hs.checkGoal(p)
	hs.publish()
	return stored, nil
}

func (hs *HydrationService) DeleteLog(ctx context.Context, id string) error {
	if !slices.ContainsFunc(hs.visibleLogs(), func(l entity.DrinkLog) bool { return l.ID == id }) {
		return errorvalues.ErrLogNotFound
	}
	if err := hs.local.DeleteLog(id); err != nil {
		return fmt.Errorf("deleting log: %w", err)
	}
	p, err := hs.refreshIntake()
	if err != nil {
		return err
	}
	if identity, ok := hs.syncedIdentity(); ok {
		if !entity.IsLocalID(id) {
			err := hs.remote.DeleteLog(ctx, id)
			if err != nil && !errors.Is(err, errorvalues.ErrLogNotFound) {
				hs.deferDelete(identity.UserID, id, err)
			}
		}
		hs.mirrorProfile(ctx, p)
	}
	hs.publish()
	return nil
}

// UpdateField sets one profile field. Values must already have the field's Go type
// (string, int, float64 or bool); see ParseFieldValue for text input.
func (hs *HydrationService) UpdateField(ctx context.Context, field ProfileField, value any) error {
	p, ok := hs.Profile()
	if !ok {
		hs.logger.Error("updating field without a profile", slog.String("field", string(field)))
		return errorvalues.ErrNoProfile
	}
	if err := applyField(&p, field, value); err != nil {
		return err
	}
	if err := hs.saveProfile(p); err != nil {
		return err
	}
	hs.mirrorProfile(ctx, p)
	switch field {
	case FieldWakeUpTime, FieldBedTime, FieldDailyGoal, FieldIsCompleted, FieldCupSize:
		hs.notifier.ProfileChanged(p)
	}
	if field == FieldDailyGoal {
		hs.checkGoal(p)
	}
	hs.publish()
	return nil
}

func (hs *HydrationService) CompleteOnboarding(ctx context.Context, answers OnboardingAnswers) (entity.Profile, error) {
	if err := validate.Struct(answers); err != nil {
		return entity.Profile{}, validationError(err, errorvalues.ErrInvalidField)
	}
	p, ok := hs.Profile()
	if !ok {
		hs.logger.Error("completing onboarding without a profile")
		return entity.Profile{}, errorvalues.ErrNoProfile
	}
	p.Name = strings.TrimSpace(answers.Name)
	p.Gender = answers.Gender
	p.Height = answers.Height
	p.Weight = answers.Weight
	p.Age = answers.Age
	p.WakeUpTime = answers.WakeUpTime
	p.BedTime = answers.BedTime
	p.ActivityLevel = answers.ActivityLevel
	p.Climate = answers.Climate
	p.DailyGoal = answers.DailyGoal
	if p.DailyGoal == 0 {
		p.DailyGoal = RecommendedDailyGoal(answers.Weight, answers.ActivityLevel, answers.Climate)
	}
	if answers.CupSize > 0 {
		p.CupSize = answers.CupSize
	}
	p.IsCompleted = true
	if err := hs.saveProfile(p); err != nil {
		return entity.Profile{}, err
	}
	if err := hs.local.SetFlag(localstore.FlagHasSeenOnboarding, true); err != nil {
		hs.logger.Warn("saving onboarding flag", slog.String("error", err.Error()))
	}
	hs.mirrorProfile(ctx, p)
	hs.notifier.ProfileChanged(p)
	hs.checkGoal(p)
	hs.publish()
	return p, nil
}

func (hs *HydrationService) MarkOnboardingSeen() error {
	return hs.local.SetFlag(localstore.FlagHasSeenOnboarding, true)
}

// ParseFieldValue converts text input into the value type UpdateField expects for field.
func ParseFieldValue(field ProfileField, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch field {
	case FieldName, FieldGender, FieldWakeUpTime, FieldBedTime, FieldActivityLevel, FieldClimate:
		return raw, nil
	case FieldHeight, FieldWeight:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", errorvalues.ErrInvalidField, field)
		}
		return v, nil
	case FieldAge, FieldDailyGoal, FieldCupSize:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", errorvalues.ErrInvalidField, field)
		}
		return v, nil
	case FieldIsCompleted:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be true or false", errorvalues.ErrInvalidField, field)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: unknown field %q", errorvalues.ErrInvalidField, field)
}

func applyField(p *entity.Profile, field ProfileField, value any) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %s %s", errorvalues.ErrInvalidField, field, reason)
	}
	switch field {
	case FieldName, FieldGender, FieldWakeUpTime, FieldBedTime, FieldActivityLevel, FieldClimate:
		s, ok := value.(string)
		if !ok {
			return invalid("must be a string")
		}
		var rule string
		switch field {
		case FieldName:
			rule = "max=100"
		case FieldGender:
			rule = "omitempty,oneof=male female other"
		case FieldWakeUpTime, FieldBedTime:
			rule = "required,clock"
		case FieldActivityLevel:
			rule = "required,oneof=low moderate high"
		case FieldClimate:
			rule = "required,oneof=cold temperate hot"
		}
		if err := validate.Var(s, rule); err != nil {
			return invalid("is not valid")
		}
		switch field {
		case FieldName:
			p.Name = s
		case FieldGender:
			p.Gender = s
		case FieldWakeUpTime:
			p.WakeUpTime = s
		case FieldBedTime:
			p.BedTime = s
		case FieldActivityLevel:
			p.ActivityLevel = s
		case FieldClimate:
			p.Climate = s
		}
	case FieldHeight, FieldWeight:
		var v float64
		switch n := value.(type) {
		case float64:
			v = n
		case int:
			v = float64(n)
		default:
			return invalid("must be a number")
		}
		if v < 0 {
			return invalid("can't be negative")
		}
		if field == FieldHeight {
			p.Height = v
		} else {
			p.Weight = v
		}
	case FieldAge, FieldDailyGoal, FieldCupSize:
		v, ok := value.(int)
		if !ok {
			return invalid("must be an integer")
		}
		switch field {
		case FieldAge:
			if v < 0 {
				return invalid("can't be negative")
			}
			p.Age = v
		case FieldDailyGoal:
			if v <= 0 {
				return invalid("must be positive")
			}
			p.DailyGoal = v
		case FieldCupSize:
			if v <= 0 {
				return invalid("must be positive")
			}
			p.CupSize = v
		}
	case FieldIsCompleted:
		v, ok := value.(bool)
		if !ok {
			return invalid("must be a boolean")
		}
		p.IsCompleted = v
	default:
		return fmt.Errorf("%w: unknown field %q", errorvalues.ErrInvalidField, field)
	}
	return nil
}

// identityChanged drops the session when the provider loses it underneath the service.
func (hs *HydrationService) identityChanged(identity *entity.Identity) {
	if identity != nil {
		return
	}
	hs.mu.Lock()
	dropped := hs.state == StateSynchronized
	if dropped {
		hs.state = StateAnonymous
		hs.session = nil
	}
	hs.mu.Unlock()
	if dropped {
		hs.logger.Info("session ended, continuing anonymously")
		hs.publish()
	}
}

func (hs *HydrationService) today() string {
	return hs.now().Format(entity.DateFormat)
}

// owner is the user id new logs are written under.
func (hs *HydrationService) owner() string {
	hs.mu.RLock()
	session := hs.session
	hs.mu.RUnlock()
	if session != nil {
		return session.UserID
	}
	return hs.local.LocalUserID()
}

func (hs *HydrationService) syncedIdentity() (entity.Identity, bool) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if hs.state != StateSynchronized || hs.session == nil {
		return entity.Identity{}, false
	}
	return *hs.session, true
}

// visibleLogs are the logs of the current owner plus device logs still waiting to be adopted.
func (hs *HydrationService) visibleLogs() []entity.DrinkLog {
	owner := hs.owner()
	device := hs.local.LocalUserID()
	logs := make([]entity.DrinkLog, 0)
	for _, l := range hs.local.GetAllLogs() {
		if l.UserID == owner || l.UserID == device {
			logs = append(logs, l)
		}
	}
	return logs
}

// refreshIntake recomputes today's intake from the visible logs and stores the profile.
func (hs *HydrationService) refreshIntake() (entity.Profile, error) {
	p, ok := hs.Profile()
	if !ok {
		return entity.Profile{}, errorvalues.ErrNoProfile
	}
	p.DailyIntake = DailyIntakeFor(hs.visibleLogs(), p.LastResetDate)
	if err := hs.saveProfile(p); err != nil {
		return entity.Profile{}, err
	}
	return p, nil
}

func (hs *HydrationService) saveProfile(p entity.Profile) error {
	if err := hs.local.SaveProfile(p); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	hs.mu.Lock()
	hs.profile = &p
	hs.mu.Unlock()
	return nil
}

// mirrorProfile pushes p to the remote store when signed in. Failures only mark pending sync.
func (hs *HydrationService) mirrorProfile(ctx context.Context, p entity.Profile) {
	identity, ok := hs.syncedIdentity()
	if !ok {
		return
	}
	p.UserID = identity.UserID
	if err := hs.remote.UpsertProfile(ctx, p); err != nil {
		hs.remoteFailed("upsert_profile", err)
	}
}

func (hs *HydrationService) hasLog(id string) bool {
	return slices.ContainsFunc(hs.local.GetAllLogs(), func(l entity.DrinkLog) bool { return l.ID == id })
}

// adoptRemoteID renames a stored log to its remote id, unless a sync already brought that id in.
func (hs *HydrationService) adoptRemoteID(localID, remoteID string) {
	if hs.hasLog(remoteID) {
		if err := hs.local.DeleteLog(localID); err != nil {
			hs.logger.Warn("dropping uploaded log copy", slog.String("error", err.Error()))
		}
		return
	}
	if err := hs.local.ReplaceLogID(localID, remoteID); err != nil {
		hs.logger.Warn("replacing local log id", slog.String("error", err.Error()))
	}
}

func (hs *HydrationService) remoteFailed(op string, err error) {
	hs.metrics.RecordRemoteFailure(op, err)
	if errorvalues.Kind(err) == errorvalues.KindPermission {
		hs.logger.Debug("remote store denied access, keeping local copy",
			slog.String("op", op), slog.String("error", err.Error()))
		return
	}
	hs.logger.Warn("remote store failed, marking pending sync",
		slog.String("op", op), slog.String("error", err.Error()))
	hs.setPendingSync(true)
}

// deferDelete queues a remote deletion that failed transiently so the next sync replays it.
func (hs *HydrationService) deferDelete(uid, id string, err error) {
	if errorvalues.Kind(err) == errorvalues.KindTransient {
		if qErr := hs.local.AddPendingDelete(entity.PendingDelete{LogID: id, UserID: uid}); qErr != nil {
			hs.logger.Error("queueing remote delete", slog.String("log_id", id), slog.String("error", qErr.Error()))
		}
	}
	hs.remoteFailed("delete_log", err)
}

// owesSync reports whether the device holds work no sync has delivered yet: logs that never
// got a remote id, or remote deletions still queued. Work of skip is ignored.
func (hs *HydrationService) owesSync(skip string) bool {
	device := hs.local.LocalUserID()
	for _, l := range hs.local.GetAllLogs() {
		if entity.IsLocalID(l.ID) && l.UserID != device && l.UserID != skip {
			return true
		}
	}
	for _, d := range hs.local.PendingDeletes() {
		if d.UserID != skip {
			return true
		}
	}
	return false
}

func (hs *HydrationService) setPendingSync(pending bool) {
	if err := hs.local.SetFlag(localstore.FlagPendingSync, pending); err != nil {
		hs.logger.Warn("saving pending sync flag", slog.String("error", err.Error()))
	}
	hs.metrics.SetPendingSync(pending)
}

// checkGoal fires GoalAchieved once per date.
func (hs *HydrationService) checkGoal(p entity.Profile) {
	if !goalReached(p) || hs.local.GoalNotifiedDate() == p.LastResetDate {
		return
	}
	if err := hs.local.SetGoalNotifiedDate(p.LastResetDate); err != nil {
		hs.logger.Warn("saving goal notification date", slog.String("error", err.Error()))
	}
	hs.notifier.GoalAchieved(p)
}

func (hs *HydrationService) publish() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.profile == nil {
		return
	}
	event := ProfileEvent{
		Profile: ReconcileDailyCycle(*hs.profile, hs.today()),
		State:   hs.state,
	}
	for _, ch := range hs.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
