package concierge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/genai"
	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/store"
)

const guestPhone = "+15551230000"

// mockCompleter implements genai.Completer for testing.
type mockCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	calls   int
	lastReq genai.CompletionRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req genai.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.reply, m.err
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	store.Store
	failGet    bool
	failUpsert bool
}

func (f *failingStore) GetConversation(ctx context.Context, phone string) (*models.Conversation, error) {
	if f.failGet {
		return nil, errors.New("connection refused")
	}
	return f.Store.GetConversation(ctx, phone)
}

func (f *failingStore) UpsertConversation(ctx context.Context, c *models.Conversation) error {
	if f.failUpsert {
		return errors.New("disk full")
	}
	return f.Store.UpsertConversation(ctx, c)
}

func testProperty() models.Property {
	return models.Property{
		ID:                   "prop-1434",
		Code:                 "1434",
		Name:                 "Lanikai Hideaway",
		Address:              "1434 Mokulua Dr, Kailua, HI 96734",
		CheckInTime:          "4:00 PM",
		CheckOutTime:         "10:00 AM",
		WifiName:             "GuestNet",
		WifiPassword:         "sunshine1",
		ParkingInstructions:  "Park in the driveway, max two cars.",
		EmergencyContact:     "808-555-0100",
		Amenities:            []string{"beach chairs", "outdoor shower"},
		LocalRecommendations: "BEACHES:\nLanikai Beach - 0.2 mi\nKailua Beach - 1.1 mi\nCOFFEE:\nKona Coffee Purveyors - 0.9 mi",
	}
}

type fixture struct {
	store     *store.InMemoryStore
	completer *mockCompleter
	machine   *Machine
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SaveProperty(context.Background(), testProperty()); err != nil {
		t.Fatalf("SaveProperty failed: %v", err)
	}
	f := &fixture{
		store:     st,
		completer: &mockCompleter{reply: "Lanikai Beach is 0.2 mi away, an easy walk."},
		// 19:00 in Honolulu
		now: time.Date(2024, 6, 14, 5, 0, 0, 0, time.UTC),
	}
	n := 0
	clock := func() time.Time { return f.now }
	composer := NewComposer(f.completer, WithComposerClock(clock), WithCompletionTimeout(200*time.Millisecond))
	f.machine = NewMachine(st, composer, WithClock(clock), WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	return f
}

func (f *fixture) send(t *testing.T, text string) Result {
	t.Helper()
	res, err := f.machine.Handle(context.Background(), guestPhone, text)
	if err != nil {
		t.Fatalf("Handle(%q) failed: %v", text, err)
	}
	return res
}

func (f *fixture) conversation(t *testing.T) *models.Conversation {
	t.Helper()
	c, err := f.store.GetConversation(context.Background(), guestPhone)
	if err != nil || c == nil {
		t.Fatalf("GetConversation: %v %v", c, err)
	}
	return c
}

func (f *fixture) confirm(t *testing.T) {
	t.Helper()
	f.send(t, "1434")
	f.send(t, "y")
}

func TestHandle_PropertyCodeMatches(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, "1434")
	if !res.StateChanged || res.To != models.StateAwaitingConfirmation {
		t.Errorf("expected transition to awaiting_confirmation, got %+v", res)
	}
	if !strings.Contains(res.Reply, "Lanikai Hideaway") {
		t.Errorf("reply should name the property, got %q", res.Reply)
	}
	c := f.conversation(t)
	if c.PropertyID == nil || *c.PropertyID != "prop-1434" {
		t.Errorf("expected property bound, got %v", c.PropertyID)
	}
}

func TestHandle_AwaitingPropertyID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no digits", "hello there", "property code"},
		{"unknown code", "my code is 9999", "couldn't find a property with code 9999"},
		{"first digit run wins", "code 9999 or 1434", "9999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.send(t, tt.input)
			if res.StateChanged || res.To != models.StateAwaitingPropertyID {
				t.Errorf("expected no state change, got %+v", res)
			}
			if !strings.Contains(res.Reply, tt.want) {
				t.Errorf("reply %q should contain %q", res.Reply, tt.want)
			}
		})
	}
}

func TestHandle_Confirmation(t *testing.T) {
	f := newFixture(t)
	f.send(t, "1434")
	res := f.send(t, "Y")
	if !res.StateChanged || res.To != models.StateConfirmed {
		t.Fatalf("expected transition to confirmed, got %+v", res)
	}
	c := f.conversation(t)
	if !c.PropertyConfirmed || c.PropertyID == nil {
		t.Errorf("expected confirmed property, got %+v", c)
	}
	if c.Timezone != "Pacific/Honolulu" {
		t.Errorf("expected timezone from address, got %s", c.Timezone)
	}
	if !strings.Contains(res.Reply, "Good evening") || !strings.Contains(res.Reply, "WiFi") {
		t.Errorf("expected time-of-day greeting with capability summary, got %q", res.Reply)
	}
}

func TestHandle_ConfirmationNegativeAndAmbiguous(t *testing.T) {
	f := newFixture(t)
	f.send(t, "1434")

	res := f.send(t, "maybe?")
	if res.StateChanged || res.Reply != ClarifyYesNoReply {
		t.Errorf("expected clarification without state change, got %+v", res)
	}

	res = f.send(t, "  Nope ")
	if res.To != models.StateAwaitingPropertyID || res.Reply != NegativeReply {
		t.Errorf("expected return to awaiting_property_id, got %+v", res)
	}
	if c := f.conversation(t); c.PropertyID != nil {
		t.Errorf("expected property cleared, got %v", *c.PropertyID)
	}
}

func TestHandle_WifiCannedReply(t *testing.T) {
	f := newFixture(t)
	f.confirm(t)
	res := f.send(t, "what's the wifi password")
	if res.StateChanged || res.To != models.StateConfirmed {
		t.Errorf("expected state unchanged, got %+v", res)
	}
	if !strings.Contains(res.Reply, "GuestNet") || !strings.Contains(res.Reply, "sunshine1") {
		t.Errorf("expected wifi name and password in reply, got %q", res.Reply)
	}
	if f.completer.calls != 0 {
		t.Errorf("canned replies must not call the completion backend")
	}
}

func TestHandle_ParkingBeatsBeach(t *testing.T) {
	f := newFixture(t)
	f.confirm(t)
	res := f.send(t, "is there parking at the beach?")
	if !strings.Contains(res.Reply, "driveway") {
		t.Errorf("expected parking reply, got %q", res.Reply)
	}
}

func TestHandle_ResetFromAnyState(t *testing.T) {
	for _, cmd := range []string{"reset", "RESTART", "Start Over", "start over!"} {
		for _, setup := range []int{0, 1, 2} {
			t.Run(fmt.Sprintf("%s/%d", cmd, setup), func(t *testing.T) {
				f := newFixture(t)
				if setup >= 1 {
					f.send(t, "1434")
				}
				if setup >= 2 {
					f.send(t, "y")
					f.send(t, "I'm Sam, any good beaches?")
				}
				res := f.send(t, cmd)
				if res.To != models.StateAwaitingPropertyID || res.Reply != ResetReply {
					t.Errorf("expected reset, got %+v", res)
				}
				c := f.conversation(t)
				if c.PropertyID != nil || c.PropertyConfirmed || c.GuestName != nil || len(c.GuestProfile.Interests) > 0 {
					t.Errorf("expected cleared context, got %+v", c)
				}
				if c.LastRecommendationText != nil {
					t.Errorf("expected last recommendation cleared")
				}
			})
		}
	}
}

func TestHandle_UnknownStateIsImplicitReset(t *testing.T) {
	f := newFixture(t)
	f.confirm(t)
	c := f.conversation(t)
	c.State = "legacy_state"
	c.PropertyConfirmed = false
	if err := f.store.UpsertConversation(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	res := f.send(t, "1434")
	if res.To != models.StateAwaitingConfirmation {
		t.Errorf("expected message handled from the initial state, got %+v", res)
	}
}

func TestHandle_RecommendationAndFollowUp(t *testing.T) {
	f := newFixture(t)
	f.confirm(t)

	res := f.send(t, "any good beaches nearby?")
	if res.Reply != "Lanikai Beach is 0.2 mi away, an easy walk." {
		t.Errorf("unexpected recommendation reply %q", res.Reply)
	}
	c := f.conversation(t)
	if c.LastCategory() != "beach" || c.LastRecommendation() != res.Reply {
		t.Errorf("expected recommendation context stored, got %q / %q", c.LastCategory(), c.LastRecommendation())
	}
	if !strings.HasPrefix(f.completer.lastReq.Prompt, "MOST RELEVANT LOCAL PLACES (beach)") {
		t.Errorf("expected beach section first in prompt, got %q", f.completer.lastReq.Prompt)
	}
	if f.completer.lastReq.PreviousRecommendations != "" {
		t.Error("first request must not carry previous recommendations")
	}

	f.send(t, "how far is it to walk to those places?")
	if !strings.Contains(f.completer.lastReq.Prompt, "YOUR PREVIOUS RECOMMENDATION") {
		t.Errorf("expected follow-up prompt, got %q", f.completer.lastReq.Prompt)
	}
	if f.completer.lastReq.PreviousRecommendations != res.Reply {
		t.Errorf("expected previous recommendations to be forwarded")
	}

	// different topic with a referential phrase is a new request
	f.send(t, "how far is the closest coffee shop, walk to it?")
	if strings.Contains(f.completer.lastReq.Prompt, "YOUR PREVIOUS RECOMMENDATION") {
		t.Error("a coffee request after beach recommendations must not be a follow-up")
	}
	if c := f.conversation(t); c.LastCategory() != "coffee" {
		t.Errorf("expected category coffee, got %s", c.LastCategory())
	}
}

func TestHandle_ComposerFailureKeepsLastRecommendation(t *testing.T) {
	f := newFixture(t)
	f.confirm(t)
	first := f.send(t, "where's a good beach?")

	f.completer.err = errors.New("upstream 502")
	res := f.send(t, "any restaurants for dinner?")
	if res.Reply != FallbackReply {
		t.Errorf("expected fallback reply, got %q", res.Reply)
	}
	c := f.conversation(t)
	if c.LastRecommendation() != first.Reply || c.LastCategory() != "beach" {
		t.Errorf("last recommendation must be unchanged, got %q / %q", c.LastRecommendation(), c.LastCategory())
	}
}

func TestHandle_ComposerTimeout(t *testing.T) {
	f := newFixture(t)
	f.confirm(t)
	f.completer.delay = time.Second
	res := f.send(t, "recommend a restaurant")
	if res.Reply != FallbackReply {
		t.Errorf("expected fallback on timeout, got %q", res.Reply)
	}
}

func TestHandle_LogGrowsPerDelivery(t *testing.T) {
	f := newFixture(t)
	first := f.send(t, "1434")
	c := f.conversation(t)
	c.Reset()
	f.store.UpsertConversation(context.Background(), c)
	second := f.send(t, "1434")
	if first.To != second.To || first.Reply != second.Reply {
		t.Errorf("re-delivery from the same state should produce the same reply: %+v vs %+v", first, second)
	}
	msgs, _ := f.store.ListMessages(context.Background(), c.ID, 0)
	if len(msgs) != 4 {
		t.Errorf("expected 4 log entries, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("expected user then assistant entries, got %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestHandle_NameIsRemembered(t *testing.T) {
	f := newFixture(t)
	f.send(t, "Hi, I'm sam")
	f.send(t, "1434")
	res := f.send(t, "yes")
	if !strings.Contains(res.Reply, "Sam") {
		t.Errorf("expected greeting by name, got %q", res.Reply)
	}
	res = f.send(t, "hello")
	if !strings.HasPrefix(res.Reply, "Hi Sam!") {
		t.Errorf("expected named greeting, got %q", res.Reply)
	}
}

func TestHandle_StoreFailures(t *testing.T) {
	st := store.NewInMemoryStore()
	fs := &failingStore{Store: st, failGet: true}
	m := NewMachine(fs, nil)
	res, err := m.Handle(context.Background(), guestPhone, "1434")
	if err == nil || res.Reply != ApologyReply {
		t.Errorf("expected apology and error on read failure, got %+v %v", res, err)
	}

	fs.failGet = false
	fs.failUpsert = true
	res, err = m.Handle(context.Background(), guestPhone, "hello")
	if err == nil || res.Reply != ApologyReply {
		t.Errorf("expected apology and error on write failure, got %+v %v", res, err)
	}
	if c, _ := st.GetConversation(context.Background(), guestPhone); c != nil {
		t.Error("failed write must not persist a conversation")
	}
}

func TestHandle_EmptyPhone(t *testing.T) {
	m := NewMachine(store.NewInMemoryStore(), nil)
	if _, err := m.Handle(context.Background(), " ", "hi"); !errors.Is(err, models.ErrEmptyPhoneNumber) {
		t.Errorf("expected ErrEmptyPhoneNumber, got %v", err)
	}
}

func TestHandle_ConcurrentSamePhone(t *testing.T) {
	f := newFixture(t)
	f.send(t, "1434")
	f.send(t, "y")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.machine.Handle(context.Background(), guestPhone, "wifi?"); err != nil {
				t.Errorf("Handle failed: %v", err)
			}
		}()
	}
	wg.Wait()

	c := f.conversation(t)
	msgs, _ := f.store.ListMessages(context.Background(), c.ID, 100)
	if len(msgs) != 4+16 {
		t.Errorf("expected every delivery logged, got %d entries", len(msgs))
	}
}

func TestStateNeverConfirmedWithoutProperty(t *testing.T) {
	inputs := []string{"y", "yes", "1434", "n", "9999", "reset", "y", "hi", "wifi", "1434", "ok", "start over", "yes"}
	f := newFixture(t)
	for _, in := range inputs {
		res := f.send(t, in)
		c := f.conversation(t)
		if c.State == models.StateConfirmed && c.PropertyID == nil {
			t.Fatalf("confirmed without property after %q", in)
		}
		if res.From.IsValid() && !models.IsAllowedTransition(res.From, res.To) {
			t.Fatalf("illegal transition %s -> %s after %q", res.From, res.To, in)
		}
	}
}
