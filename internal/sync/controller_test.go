package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	stdsync "sync"

	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/provider"
)

var testMeeting = models.MeetingID{Platform: "google_meet", NativeID: "abc-defg-hij"}

// fakePush is a scriptable in-memory push channel.
type fakePush struct {
	mu           stdsync.Mutex
	connectErr   error
	connects     int
	disconnects  int
	onTranscript func([]models.Segment)
	onStatus     func(string)
	onError      func(error)
	onConnected  func()
	onDisconn    func()
}

func (f *fakePush) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	onConnected := f.onConnected
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if onConnected != nil {
		onConnected()
	}
	return nil
}

func (f *fakePush) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakePush) SetOnTranscriptUpdate(h func([]models.Segment)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTranscript = h
}

func (f *fakePush) SetOnMeetingStatus(h func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStatus = h
}

func (f *fakePush) SetOnError(h func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = h
}

func (f *fakePush) SetOnConnected(h func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnected = h
}

func (f *fakePush) SetOnDisconnected(h func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconn = h
}

func (f *fakePush) deliver(segs []models.Segment) {
	f.mu.Lock()
	h := f.onTranscript
	f.mu.Unlock()
	if h != nil {
		h(segs)
	}
}

func (f *fakePush) status(s string) {
	f.mu.Lock()
	h := f.onStatus
	f.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (f *fakePush) fail(err error) {
	f.mu.Lock()
	h := f.onError
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (f *fakePush) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// fakePoll records lifecycle calls and lets tests inject snapshots.
type fakePoll struct {
	mu         stdsync.Mutex
	starts     int
	stops      int
	onSnapshot func(*provider.TranscriptSnapshot)
	onError    func(error)
}

func (f *fakePoll) Start() {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
}

func (f *fakePoll) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakePoll) SetOnSnapshot(h func(*provider.TranscriptSnapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSnapshot = h
}

func (f *fakePoll) SetOnError(h func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = h
}

func (f *fakePoll) snapshot(s *provider.TranscriptSnapshot) {
	f.mu.Lock()
	h := f.onSnapshot
	f.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (f *fakePoll) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// fakeBots records bot lifecycle calls.
type fakeBots struct {
	mu         stdsync.Mutex
	stops      int
	updates    []provider.BotConfig
	stopErr    error
	updateErr  error
	lastTarget models.MeetingID
}

func (f *fakeBots) StopBot(ctx context.Context, meeting models.MeetingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.lastTarget = meeting
	return f.stopErr
}

func (f *fakeBots) UpdateBotConfig(ctx context.Context, meeting models.MeetingID, cfg provider.BotConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, cfg)
	f.lastTarget = meeting
	return f.updateErr
}

func (f *fakeBots) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func seg(speaker, text string, start float64) models.Segment {
	s := models.Segment{Speaker: speaker, Text: text, Start: start}
	s.Normalize()
	return s
}

func newTestController(push *fakePush, poller *fakePoll, bots *fakeBots, preferPush bool) *Controller {
	cfg := Config{
		Meeting:    testMeeting,
		PreferPush: preferPush,
		Poller:     poller,
	}
	if push != nil {
		cfg.Push = push
	}
	if bots != nil {
		cfg.Bots = bots
	}
	return NewController(cfg)
}

func TestStart_PushPreferred(t *testing.T) {
	push := &fakePush{}
	poller := &fakePoll{}
	c := newTestController(push, poller, nil, true)

	if c.State() != StateInitializing {
		t.Fatalf("expected initial state %s, got %s", StateInitializing, c.State())
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if c.State() != StatePushActive {
		t.Errorf("expected state %s, got %s", StatePushActive, c.State())
	}
	if c.ConnectionState() != "live" {
		t.Errorf("expected connection state 'live', got %s", c.ConnectionState())
	}
	if poller.startCount() != 0 {
		t.Error("poller should not start while push is live")
	}
}

func TestStart_PollWhenPushNotPreferred(t *testing.T) {
	poller := &fakePoll{}
	c := newTestController(nil, poller, nil, false)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if c.State() != StatePollActive {
		t.Errorf("expected state %s, got %s", StatePollActive, c.State())
	}
	if c.ConnectionState() != "polling" {
		t.Errorf("expected connection state 'polling', got %s", c.ConnectionState())
	}
	if poller.startCount() != 1 {
		t.Errorf("expected poller to start once, got %d", poller.startCount())
	}
}

func TestStart_Twice(t *testing.T) {
	c := newTestController(nil, &fakePoll{}, nil, false)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
}

func TestMerge_DedupAcrossSources(t *testing.T) {
	push := &fakePush{}
	poller := &fakePoll{}
	c := newTestController(push, poller, nil, true)
	c.Start(context.Background())

	a := seg("Alice", "hello", 1.0)
	b := seg("Bob", "hi there", 2.0)

	push.deliver([]models.Segment{a, b})
	// The poll snapshot redelivers both plus one new segment.
	d := seg("Alice", "how are you", 3.0)
	poller.snapshot(&provider.TranscriptSnapshot{
		Meeting:  testMeeting,
		Segments: []models.Segment{a, b, d},
	})

	got := c.Segments()
	if len(got) != 3 {
		t.Fatalf("expected 3 segments after overlapping delivery, got %d", len(got))
	}
	if got[0].ID != a.ID || got[1].ID != b.ID || got[2].ID != d.ID {
		t.Errorf("unexpected order: %v", got)
	}
	if c.SegmentCount() != 3 {
		t.Errorf("expected count 3, got %d", c.SegmentCount())
	}
}

func TestMerge_PreservesInsertionOrder(t *testing.T) {
	push := &fakePush{}
	c := newTestController(push, &fakePoll{}, nil, true)
	c.Start(context.Background())

	first := seg("Alice", "one", 1.0)
	second := seg("Bob", "two", 2.0)
	third := seg("Alice", "three", 3.0)

	push.deliver([]models.Segment{first})
	push.deliver([]models.Segment{second, first}) // redelivery of first
	push.deliver([]models.Segment{third})

	got := c.Segments()
	want := []string{first.ID, second.ID, third.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestMerge_EmitsOnlyAddedSegments(t *testing.T) {
	push := &fakePush{}
	c := newTestController(push, &fakePoll{}, nil, true)

	var emitted [][]models.Segment
	var mu stdsync.Mutex
	c.SetOnSegments(func(segs []models.Segment) {
		mu.Lock()
		emitted = append(emitted, segs)
		mu.Unlock()
	})
	c.Start(context.Background())

	a := seg("Alice", "hello", 1.0)
	push.deliver([]models.Segment{a})
	push.deliver([]models.Segment{a}) // pure redelivery, nothing new

	mu.Lock()
	defer mu.Unlock()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 emission, got %d", len(emitted))
	}
	if len(emitted[0]) != 1 || emitted[0][0].ID != a.ID {
		t.Errorf("unexpected emission: %v", emitted[0])
	}
}

func TestPushError_FallsBackToPolling(t *testing.T) {
	push := &fakePush{}
	poller := &fakePoll{}
	c := newTestController(push, poller, nil, true)

	errs := make(chan error, 1)
	c.SetOnError(func(err error) { errs <- err })
	c.Start(context.Background())

	push.fail(errors.New("connection reset"))

	if c.State() != StatePollActive {
		t.Errorf("expected state %s after push failure, got %s", StatePollActive, c.State())
	}
	if poller.startCount() != 1 {
		t.Errorf("expected poller to start once, got %d", poller.startCount())
	}
	if push.disconnectCount() == 0 {
		t.Error("expected push channel to be disconnected on fallback")
	}
	select {
	case <-errs:
	default:
		t.Error("expected the push error to be surfaced")
	}

	// The fallback is one-way: a second failure must not restart anything.
	push.fail(errors.New("again"))
	if poller.startCount() != 1 {
		t.Errorf("expected no further poller starts, got %d", poller.startCount())
	}
}

func TestStart_PushConnectFailureFallsBack(t *testing.T) {
	push := &fakePush{connectErr: errors.New("no API key available for push connection")}
	poller := &fakePoll{}
	c := newTestController(push, poller, nil, true)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start should not fail on push connect error, got %v", err)
	}
	if c.State() != StatePollActive {
		t.Errorf("expected state %s, got %s", StatePollActive, c.State())
	}
	if poller.startCount() != 1 {
		t.Errorf("expected poller to start once, got %d", poller.startCount())
	}
}

func TestStop_IsTerminalAndIdempotent(t *testing.T) {
	push := &fakePush{}
	poller := &fakePoll{}
	bots := &fakeBots{}
	c := newTestController(push, poller, bots, true)
	c.Start(context.Background())

	a := seg("Alice", "hello", 1.0)
	push.deliver([]models.Segment{a})

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if c.State() != StateStopped {
		t.Errorf("expected state %s, got %s", StateStopped, c.State())
	}
	if c.Active() {
		t.Error("expected session to be inactive")
	}
	if c.ConnectionState() != "stopped" {
		t.Errorf("expected connection state 'stopped', got %s", c.ConnectionState())
	}
	if bots.stopCount() != 1 {
		t.Errorf("expected 1 remote stop call, got %d", bots.stopCount())
	}

	// Late deliveries from both sources are ignored.
	push.deliver([]models.Segment{seg("Bob", "late", 9.0)})
	poller.snapshot(&provider.TranscriptSnapshot{Meeting: testMeeting, Segments: []models.Segment{seg("Carol", "later", 10.0)}})
	if c.SegmentCount() != 1 {
		t.Errorf("expected merged transcript to stay at 1 segment, got %d", c.SegmentCount())
	}

	// Repeated Stop must not call the remote again.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if bots.stopCount() != 1 {
		t.Errorf("expected no additional remote stop calls, got %d", bots.stopCount())
	}
}

func TestRelease_SkipsRemoteStop(t *testing.T) {
	bots := &fakeBots{}
	poller := &fakePoll{}
	c := newTestController(nil, poller, bots, false)
	c.Start(context.Background())

	c.Release()

	if c.State() != StateStopped {
		t.Errorf("expected state %s, got %s", StateStopped, c.State())
	}
	if bots.stopCount() != 0 {
		t.Errorf("expected no remote stop call on Release, got %d", bots.stopCount())
	}
}

func TestMeetingStatusStopped_EndsSession(t *testing.T) {
	for _, status := range []string{"stopped", "ended"} {
		t.Run(status, func(t *testing.T) {
			push := &fakePush{}
			bots := &fakeBots{}
			c := newTestController(push, &fakePoll{}, bots, true)

			statuses := make(chan string, 1)
			c.SetOnStatus(func(s string) { statuses <- s })
			c.Start(context.Background())

			push.status(status)

			if c.State() != StateStopped {
				t.Errorf("expected state %s after status %q, got %s", StateStopped, status, c.State())
			}
			select {
			case s := <-statuses:
				if s != status {
					t.Errorf("expected status %q, got %q", status, s)
				}
			default:
				t.Error("expected status handler to fire")
			}
			// Remote teardown already happened on the provider side.
			if bots.stopCount() != 0 {
				t.Errorf("expected no remote stop call, got %d", bots.stopCount())
			}
		})
	}
}

func TestSetLanguage(t *testing.T) {
	bots := &fakeBots{}
	c := newTestController(nil, &fakePoll{}, bots, false)
	c.Start(context.Background())

	if c.Language() != "auto" {
		t.Errorf("expected initial language 'auto', got %s", c.Language())
	}
	if err := c.SetLanguage(context.Background(), "es"); err != nil {
		t.Fatalf("set language failed: %v", err)
	}
	if c.Language() != "es" {
		t.Errorf("expected language 'es', got %s", c.Language())
	}

	bots.mu.Lock()
	updates := len(bots.updates)
	last := bots.updates[len(bots.updates)-1]
	bots.mu.Unlock()
	if updates != 1 || last.Language != "es" {
		t.Errorf("unexpected remote updates: %v", bots.updates)
	}
}

func TestSetLanguage_RemoteFailureKeepsLocal(t *testing.T) {
	bots := &fakeBots{updateErr: errors.New("boom")}
	c := newTestController(nil, &fakePoll{}, bots, false)
	c.Start(context.Background())

	if err := c.SetLanguage(context.Background(), "fr"); err == nil {
		t.Fatal("expected error from remote update")
	}
	if c.Language() != "auto" {
		t.Errorf("expected language to stay 'auto' after failed update, got %s", c.Language())
	}
}

func TestParticipantCount_ExcludesUnknown(t *testing.T) {
	push := &fakePush{}
	c := newTestController(push, &fakePoll{}, nil, true)
	c.Start(context.Background())

	push.deliver([]models.Segment{
		seg("Alice", "one", 1.0),
		seg("Bob", "two", 2.0),
		seg("Alice", "three", 3.0),
		seg("", "mystery voice", 4.0), // normalizes to Unknown
	})

	if got := c.ParticipantCount(); got != 2 {
		t.Errorf("expected 2 participants, got %d", got)
	}
}

func TestColdStart_SnapshotSeedsTranscript(t *testing.T) {
	poller := &fakePoll{}
	c := newTestController(nil, poller, nil, false)
	c.Start(context.Background())

	history := []models.Segment{
		seg("Alice", "earlier remark", 1.0),
		seg("Bob", "reply", 2.0),
	}
	poller.snapshot(&provider.TranscriptSnapshot{Meeting: testMeeting, Language: "en", Segments: history})

	if c.SegmentCount() != 2 {
		t.Fatalf("expected snapshot to seed 2 segments, got %d", c.SegmentCount())
	}
	if c.Language() != "en" {
		t.Errorf("expected language from snapshot, got %s", c.Language())
	}
}

func TestSegments_ReturnsCopy(t *testing.T) {
	push := &fakePush{}
	c := newTestController(push, &fakePoll{}, nil, true)
	c.Start(context.Background())

	push.deliver([]models.Segment{seg("Alice", "hello", 1.0)})

	snapshot := c.Segments()
	snapshot[0].Text = "mutated"
	if c.Segments()[0].Text != "hello" {
		t.Error("expected stored transcript to be unaffected by caller mutation")
	}
}

// slowSink blocks long enough to prove publishing is off the merge path.
type slowSink struct {
	published int32
	release   chan struct{}
}

func (s *slowSink) PublishSegment(ctx context.Context, meeting models.MeetingID, segment models.Segment) error {
	<-s.release
	atomic.AddInt32(&s.published, 1)
	return nil
}

func TestMerge_PublishesOffTheMergePath(t *testing.T) {
	push := &fakePush{}
	sink := &slowSink{release: make(chan struct{})}
	c := NewController(Config{
		Meeting:    testMeeting,
		PreferPush: true,
		Push:       push,
		Poller:     &fakePoll{},
		Sink:       sink,
	})
	c.Start(context.Background())

	done := make(chan struct{})
	go func() {
		push.deliver([]models.Segment{seg("Alice", "hello", 1.0)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("merge blocked on the segment sink")
	}

	close(sink.release)
	deadline := time.After(time.Second)
	for atomic.LoadInt32(&sink.published) == 0 {
		select {
		case <-deadline:
			t.Fatal("segment was never published")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSessionID_IsUniquePerController(t *testing.T) {
	a := newTestController(nil, &fakePoll{}, nil, false)
	b := newTestController(nil, &fakePoll{}, nil, false)
	if a.SessionID() == "" || a.SessionID() == b.SessionID() {
		t.Errorf("expected distinct non-empty session ids, got %q and %q", a.SessionID(), b.SessionID())
	}
	if a.Meeting() != testMeeting {
		t.Errorf("unexpected meeting %s", a.Meeting())
	}
}
