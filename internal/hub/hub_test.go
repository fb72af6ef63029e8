package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chathub/pkg/types"
)

// fakeConn records every event the hub delivers to one session.
type fakeConn struct {
	mu     sync.Mutex
	events []*types.Event
	broken bool
}

func (f *fakeConn) Send(event *types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return ErrEventChannelFull
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConn) Close() error       { return nil }
func (f *fakeConn) RemoteAddr() string { return "fake:0" }

func (f *fakeConn) named(name string) []*types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*types.Event
	for _, ev := range f.events {
		if ev.Event == name {
			matched = append(matched, ev)
		}
	}
	return matched
}

// waitFor polls until at least count events with the given name arrived and
// returns the last of them.
func (f *fakeConn) waitFor(t *testing.T, name string, count int) *types.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if matched := f.named(name); len(matched) >= count {
			return matched[count-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q event(s); got %v", count, name, f.summary())
	return nil
}

// assertNever verifies no event with the given name arrives within a grace
// window.
func (f *fakeConn) assertNever(t *testing.T, name string) {
	t.Helper()
	time.Sleep(100 * time.Millisecond)
	if matched := f.named(name); len(matched) > 0 {
		t.Fatalf("expected no %q events, got %d", name, len(matched))
	}
}

func (f *fakeConn) summary() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		names = append(names, ev.Event)
	}
	return names
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(50, nil)
	h.now = func() time.Time {
		return time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func connect(t *testing.T, h *Hub) (*Session, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	s, err := h.Connect(fc)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	fc.waitFor(t, types.EventHistory, 1)
	return s, fc
}

func join(t *testing.T, h *Hub, s *Session, fc *fakeConn, username string) {
	t.Helper()
	if err := h.Join(s, username); err != nil {
		t.Fatalf("join enqueue failed: %v", err)
	}
	fc.waitFor(t, types.EventUserList, len(fc.named(types.EventUserList))+1)
}

func rosterOf(ev *types.Event) []string {
	roster, _ := ev.Data.([]string)
	return roster
}

func messageOf(t *testing.T, ev *types.Event) types.Message {
	t.Helper()
	msg, ok := ev.Data.(types.Message)
	if !ok {
		t.Fatalf("expected message payload, got %T", ev.Data)
	}
	return msg
}

func TestHub_StartStop(t *testing.T) {
	h := NewHub(50, nil)

	ctx := context.Background()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if err := h.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Errorf("expected stop to succeed, got %v", err)
	}
	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("expected ErrHubNotRunning, got %v", err)
	}
}

func TestHub_OperationsRequireRunningHub(t *testing.T) {
	h := NewHub(50, nil)

	if _, err := h.Connect(&fakeConn{}); err != ErrHubNotRunning {
		t.Errorf("expected ErrHubNotRunning from Connect, got %v", err)
	}
	s := newSession("s1", &fakeConn{})
	if err := h.Join(s, "alice"); err != ErrHubNotRunning {
		t.Errorf("expected ErrHubNotRunning from Join, got %v", err)
	}
}

func TestHub_ConnectReplaysHistory(t *testing.T) {
	h := startHub(t)

	// First connection sees an empty replay.
	_, fc := connect(t, h)
	history := fc.waitFor(t, types.EventHistory, 1)
	if msgs, ok := history.Data.([]types.Message); !ok || len(msgs) != 0 {
		t.Errorf("expected empty history replay, got %v", history.Data)
	}

	// History replay is sent to the requester only.
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")
	_ = h.SendMessage(sA, "hello")
	fcA.waitFor(t, types.EventMessage, 2) // join announcement + chat message

	_, fcB := connect(t, h)
	replay := fcB.waitFor(t, types.EventHistory, 1)
	msgs, ok := replay.Data.([]types.Message)
	if !ok || len(msgs) != 1 {
		t.Fatalf("expected replay of 1 message, got %v", replay.Data)
	}
	if msgs[0].Author != "alice" || msgs[0].Text != "hello" {
		t.Errorf("unexpected replayed message: %+v", msgs[0])
	}
	if len(fc.named(types.EventHistory)) != 1 {
		t.Error("existing sessions must not receive another history replay")
	}
}

func TestHub_JoinAnnouncesAndUpdatesRoster(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	_, fcB := connect(t, h)

	join(t, h, sA, fcA, "alice")

	// The join announcement goes to all sessions, the joiner included.
	for _, fc := range []*fakeConn{fcA, fcB} {
		announcement := messageOf(t, fc.waitFor(t, types.EventMessage, 1))
		if announcement.Author != types.SystemAuthor {
			t.Errorf("expected System author, got %s", announcement.Author)
		}
		if announcement.Text != "alice has joined the chat." {
			t.Errorf("unexpected announcement text: %q", announcement.Text)
		}
		if announcement.Timestamp == "" {
			t.Error("announcement must carry a server-assigned timestamp")
		}

		roster := rosterOf(fc.waitFor(t, types.EventUserList, 1))
		if len(roster) != 1 || roster[0] != "alice" {
			t.Errorf("expected roster [alice], got %v", roster)
		}
	}
}

func TestHub_DuplicateJoinRejected(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	sB, fcB := connect(t, h)

	join(t, h, sA, fcA, "alice")

	if err := h.Join(sB, "alice"); err != nil {
		t.Fatalf("join enqueue failed: %v", err)
	}
	errEvent := fcB.waitFor(t, types.EventError, 1)
	if msg, ok := errEvent.Data.(string); !ok || msg == "" {
		t.Errorf("expected human-readable error message, got %v", errEvent.Data)
	}

	// Requester stays unjoined, roster unchanged.
	if sB.Joined() {
		t.Error("session must remain unjoined after rejection")
	}
	if roster := h.Roster(); len(roster) != 1 || roster[0] != "alice" {
		t.Errorf("expected roster [alice], got %v", roster)
	}

	// Retrying with a different name succeeds.
	join(t, h, sB, fcB, "bob")
	roster := rosterOf(fcB.waitFor(t, types.EventUserList, 2))
	if len(roster) != 2 || roster[0] != "alice" || roster[1] != "bob" {
		t.Errorf("expected roster [alice bob], got %v", roster)
	}
}

func TestHub_SecondJoinFromJoinedSessionIgnored(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")

	if err := h.Join(sA, "alice2"); err != nil {
		t.Fatalf("join enqueue failed: %v", err)
	}
	fcA.assertNever(t, types.EventError)
	if sA.Username() != "alice" {
		t.Errorf("username must not change, got %s", sA.Username())
	}
	if roster := h.Roster(); len(roster) != 1 || roster[0] != "alice" {
		t.Errorf("expected roster [alice], got %v", roster)
	}
}

func TestHub_MessageBroadcastIncludesAuthor(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	sB, fcB := connect(t, h)
	join(t, h, sA, fcA, "alice")
	join(t, h, sB, fcB, "bob")

	if err := h.SendMessage(sA, "hi"); err != nil {
		t.Fatalf("send enqueue failed: %v", err)
	}

	// Both already saw two System join announcements; the chat message is
	// the third message event for each.
	for _, fc := range []*fakeConn{fcA, fcB} {
		msg := messageOf(t, fc.waitFor(t, types.EventMessage, 3))
		if msg.Author != "alice" || msg.Text != "hi" {
			t.Errorf("unexpected message: %+v", msg)
		}
		if _, err := time.Parse(types.TimestampLayout, msg.Timestamp); err != nil {
			t.Errorf("timestamp %q does not match layout: %v", msg.Timestamp, err)
		}
	}

	if size := h.Stats().HistorySize; size != 1 {
		t.Errorf("expected history size 1, got %d", size)
	}
}

func TestHub_UserMessagesNotSentToUnjoined(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")
	_, fcSpectator := connect(t, h)

	_ = h.SendMessage(sA, "members only")
	fcA.waitFor(t, types.EventMessage, 2)

	// The unjoined spectator saw no chat message (its only possible message
	// events would be System announcements, none since it connected).
	fcSpectator.assertNever(t, types.EventMessage)
}

func TestHub_MessageFromUnjoinedIgnored(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")
	sB, fcB := connect(t, h)

	if err := h.SendMessage(sB, "sneaky"); err != nil {
		t.Fatalf("send enqueue failed: %v", err)
	}

	fcB.assertNever(t, types.EventError)
	fcA.assertNever(t, types.EventTyping)
	if got := len(fcA.named(types.EventMessage)); got != 1 {
		t.Errorf("expected only the join announcement, got %d message events", got)
	}
	if size := h.Stats().HistorySize; size != 0 {
		t.Errorf("unjoined sender must not mutate history, got size %d", size)
	}
}

func TestHub_TypingExcludesTyper(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	sB, fcB := connect(t, h)
	join(t, h, sA, fcA, "alice")
	join(t, h, sB, fcB, "bob")

	if err := h.Typing(sA); err != nil {
		t.Fatalf("typing enqueue failed: %v", err)
	}

	notice := fcB.waitFor(t, types.EventTyping, 1)
	payload, ok := notice.Data.(types.TypingPayload)
	if !ok || payload.Username != "alice" {
		t.Errorf("expected typing notice for alice, got %v", notice.Data)
	}
	fcA.assertNever(t, types.EventTyping)
}

func TestHub_TypingFromUnjoinedIgnored(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")
	sB, _ := connect(t, h)

	if err := h.Typing(sB); err != nil {
		t.Fatalf("typing enqueue failed: %v", err)
	}
	fcA.assertNever(t, types.EventTyping)
}

func TestHub_DisconnectAnnouncesAndPrunesRoster(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	sB, fcB := connect(t, h)
	join(t, h, sA, fcA, "alice")
	join(t, h, sB, fcB, "bob")

	if err := h.Disconnect(sA); err != nil {
		t.Fatalf("disconnect enqueue failed: %v", err)
	}

	farewell := messageOf(t, fcB.waitFor(t, types.EventMessage, 3))
	if farewell.Author != types.SystemAuthor || farewell.Text != "alice has left the chat." {
		t.Errorf("unexpected farewell: %+v", farewell)
	}
	roster := rosterOf(fcB.waitFor(t, types.EventUserList, 3))
	if len(roster) != 1 || roster[0] != "bob" {
		t.Errorf("expected roster [bob], got %v", roster)
	}
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	_, fcB := connect(t, h)
	join(t, h, sA, fcA, "alice")

	_ = h.Disconnect(sA)
	fcB.waitFor(t, types.EventMessage, 2) // join + leave announcements

	// A repeated disconnect signal has no further effect.
	_ = h.Disconnect(sA)
	time.Sleep(100 * time.Millisecond)
	if got := len(fcB.named(types.EventMessage)); got != 2 {
		t.Errorf("expected no extra announcements, got %d message events", got)
	}
}

func TestHub_DisconnectOfUnjoinedIsSilent(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")
	sB, _ := connect(t, h)

	_ = h.Disconnect(sB)
	time.Sleep(100 * time.Millisecond)
	if got := len(fcA.named(types.EventMessage)); got != 1 {
		t.Errorf("unjoined disconnect must not announce, got %d message events", got)
	}
	if stats := h.Stats(); stats.Connected != 1 {
		t.Errorf("expected 1 connected session, got %d", stats.Connected)
	}
}

func TestHub_BrokenRecipientDoesNotBlockBroadcast(t *testing.T) {
	h := startHub(t)
	sA, fcA := connect(t, h)
	join(t, h, sA, fcA, "alice")

	broken := &fakeConn{broken: true}
	if _, err := h.Connect(broken); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	sB, fcB := connect(t, h)
	join(t, h, sB, fcB, "bob")

	// fcB connected after alice joined, so its message events are bob's
	// join announcement and then the chat message.
	_ = h.SendMessage(sA, "still flowing")
	msg := messageOf(t, fcB.waitFor(t, types.EventMessage, 2))
	if msg.Text != "still flowing" {
		t.Errorf("healthy recipients must still receive broadcasts, got %+v", msg)
	}
}

// TestHub_FullScenario walks the end-to-end sequence from the requirements:
// duplicate join rejection, retry, chat, and departure.
func TestHub_FullScenario(t *testing.T) {
	h := startHub(t)

	// A connects and receives an empty history.
	sA, fcA := connect(t, h)
	if msgs, _ := fcA.named(types.EventHistory)[0].Data.([]types.Message); len(msgs) != 0 {
		t.Fatalf("expected empty history, got %v", msgs)
	}
	join(t, h, sA, fcA, "alice")

	// B tries to join as "alice" and is rejected; roster unchanged.
	sB, fcB := connect(t, h)
	_ = h.Join(sB, "alice")
	fcB.waitFor(t, types.EventError, 1)
	if roster := h.Roster(); len(roster) != 1 || roster[0] != "alice" {
		t.Fatalf("expected roster [alice], got %v", roster)
	}

	// B joins as "bob"; roster is [alice bob] in join order. B connected
	// after alice joined, so this is its first roster update.
	join(t, h, sB, fcB, "bob")
	roster := rosterOf(fcB.waitFor(t, types.EventUserList, 1))
	if len(roster) != 2 || roster[0] != "alice" || roster[1] != "bob" {
		t.Fatalf("expected roster [alice bob], got %v", roster)
	}

	// A sends "hi"; both receive it with author alice and a server timestamp.
	// A has seen both join announcements, B only bob's.
	_ = h.SendMessage(sA, "hi")
	for fc, count := range map[*fakeConn]int{fcA: 3, fcB: 2} {
		msg := messageOf(t, fc.waitFor(t, types.EventMessage, count))
		if msg.Author != "alice" || msg.Text != "hi" || msg.Timestamp == "" {
			t.Fatalf("unexpected chat message: %+v", msg)
		}
	}

	// A disconnects; B sees the farewell and the pruned roster.
	_ = h.Disconnect(sA)
	farewell := messageOf(t, fcB.waitFor(t, types.EventMessage, 3))
	if farewell.Text != "alice has left the chat." {
		t.Errorf("unexpected farewell: %+v", farewell)
	}
	finalRoster := rosterOf(fcB.waitFor(t, types.EventUserList, 2))
	if len(finalRoster) != 1 || finalRoster[0] != "bob" {
		t.Errorf("expected roster [bob], got %v", finalRoster)
	}
}

// Events must serialize: concurrent joins with the same name cannot both
// succeed.
func TestHub_ConcurrentDuplicateJoins(t *testing.T) {
	h := startHub(t)

	const contenders = 8
	sessions := make([]*Session, contenders)
	conns := make([]*fakeConn, contenders)
	for i := range sessions {
		sessions[i], conns[i] = connect(t, h)
	}

	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.Join(sessions[i], "highlander")
		}(i)
	}
	wg.Wait()

	// Exactly one contender wins; everyone else gets the rejection event.
	deadline := time.Now().Add(2 * time.Second)
	for {
		errors := 0
		for _, fc := range conns {
			errors += len(fc.named(types.EventError))
		}
		if errors == contenders-1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d rejections, got %d", contenders-1, errors)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if roster := h.Roster(); len(roster) != 1 || roster[0] != "highlander" {
		t.Errorf("expected a single joined username, got %v", roster)
	}
}

// The outbound envelope must serialize the way the web client expects.
func TestHub_EventWireShape(t *testing.T) {
	ev := types.NewMessageEvent(types.Message{Author: "alice", Text: "hi", Timestamp: "3:04:05 PM"})
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	expected := `{"event":"message","data":{"author":"alice","text":"hi","timestamp":"3:04:05 PM"}}`
	if string(data) != expected {
		t.Errorf("unexpected wire shape:\n got: %s\nwant: %s", data, expected)
	}
}
