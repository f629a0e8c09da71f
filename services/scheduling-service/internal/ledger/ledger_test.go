package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func params(prof string, start, end time.Time) CreateParams {
	return CreateParams{
		ProfessionalID: prof,
		ClientID:       "c1",
		Start:          start,
		End:            end,
		Medium:         model.MediumVideo,
		Status:         model.StatusConfirmed,
	}
}

func TestCreate_RejectsOverlap(t *testing.T) {
	l := New(clock.NewFake(monday))
	if _, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := l.Create(params("p1", monday.Add(9*time.Hour+30*time.Minute), monday.Add(10*time.Hour+30*time.Minute)))
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreate_BackToBackAllowed(t *testing.T) {
	l := New(clock.NewFake(monday))
	if _, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := l.Create(params("p1", monday.Add(10*time.Hour), monday.Add(11*time.Hour))); err != nil {
		t.Fatalf("back-to-back create should succeed: %v", err)
	}
}

func TestCreate_OtherProfessionalUnaffected(t *testing.T) {
	l := New(clock.NewFake(monday))
	if _, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := l.Create(params("p2", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); err != nil {
		t.Fatalf("same slot for another professional should succeed: %v", err)
	}
}

func TestCreate_ConcurrentRaceOneWinner(t *testing.T) {
	l := New(clock.NewFake(monday))
	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestCreate_CancelledSlotReusable(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := l.Transition(a.ID, model.EventCancel, "client request"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); err != nil {
		t.Fatalf("cancelled slot should be bookable again: %v", err)
	}
}

func TestTransition_CancelRequiresReason(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))

	if _, err := l.Transition(a.ID, model.EventCancel, "  "); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for empty reason, got %v", err)
	}
	got, err := l.Transition(a.ID, model.EventCancel, "provider unavailable")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got.Status != model.StatusCancelled || got.CancelReason != "provider unavailable" {
		t.Fatalf("unexpected result %s reason=%q", got.Status, got.CancelReason)
	}
}

func TestTransition_CancelClosesAtStart(t *testing.T) {
	clk := clock.NewFake(monday)
	l := New(clk)
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))

	clk.Set(monday.Add(9*time.Hour + 30*time.Minute))
	got, err := l.Transition(a.ID, model.EventCancel, "too late")
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("cancel after start must be rejected, got %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("rejected cancel changed status to %s", got.Status)
	}

	// Exactly at the start time the window is already closed.
	clk.Set(monday.Add(9 * time.Hour))
	if _, err := l.Transition(a.ID, model.EventCancel, "too late"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("cancel at start must be rejected, got %v", err)
	}

	clk.Set(monday.Add(8*time.Hour + 59*time.Minute))
	if _, err := l.Transition(a.ID, model.EventCancel, "just in time"); err != nil {
		t.Fatalf("cancel before start failed: %v", err)
	}
}

func TestTransition_TerminalIsStable(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	if _, err := l.Transition(a.ID, model.EventCancel, "done"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	got, err := l.Transition(a.ID, model.EventConfirm, "")
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("terminal status changed to %s", got.Status)
	}
}

func TestReschedule_PreservesIdentity(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))

	got, err := l.Reschedule(a.ID, monday.Add(14*time.Hour), monday.Add(15*time.Hour), false)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if got.ID != a.ID {
		t.Fatal("reschedule must keep the appointment id")
	}
	if !got.Start.Equal(monday.Add(14*time.Hour)) || got.Status != model.StatusConfirmed {
		t.Fatalf("unexpected state after reschedule: %s %s", got.Start, got.Status)
	}
}

func TestReschedule_ReconfirmDropsToPending(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))

	got, err := l.Reschedule(a.ID, monday.Add(14*time.Hour), monday.Add(15*time.Hour), true)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending after reconfirm policy, got %s", got.Status)
	}
}

func TestReschedule_ConflictLeavesOriginal(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	if _, err := l.Create(params("p1", monday.Add(14*time.Hour), monday.Add(15*time.Hour))); err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	_, err := l.Reschedule(a.ID, monday.Add(14*time.Hour+30*time.Minute), monday.Add(15*time.Hour+30*time.Minute), false)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := l.Get(a.ID)
	if !got.Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatal("failed reschedule must not move the appointment")
	}
}

func TestConfirm_RevalidatesSlot(t *testing.T) {
	l := New(clock.NewFake(monday))
	p := params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))
	p.Status = model.StatusPending
	a, err := l.Create(p)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// Confirming while pending still holds the slot, so a second create loses.
	if _, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("pending appointment should hold its interval, got %v", err)
	}
	got, err := l.Transition(a.ID, model.EventConfirm, "")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
}

func TestBusyIntervals_ExcludesInactive(t *testing.T) {
	l := New(clock.NewFake(monday))
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	l.Create(params("p1", monday.Add(11*time.Hour), monday.Add(12*time.Hour)))
	if _, err := l.Transition(a.ID, model.EventCancel, "moved away"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	busy := l.BusyIntervals("p1", monday, monday.AddDate(0, 0, 1))
	if len(busy) != 1 {
		t.Fatalf("expected 1 busy interval, got %d", len(busy))
	}
	if !busy[0].Start.Equal(monday.Add(11 * time.Hour)) {
		t.Fatalf("unexpected busy interval start %s", busy[0].Start)
	}
}

func TestList_FiltersAndOrders(t *testing.T) {
	l := New(clock.NewFake(monday))
	l.Create(params("p1", monday.Add(11*time.Hour), monday.Add(12*time.Hour)))
	l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	l.Create(params("p2", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))

	got := l.List(ListFilter{ParticipantID: "p1"})
	if len(got) != 2 {
		t.Fatalf("expected 2 appointments for p1, got %d", len(got))
	}
	if !got[0].Start.Before(got[1].Start) {
		t.Fatal("expected start-ascending order")
	}

	byClient := l.List(ListFilter{ParticipantID: "c1"})
	if len(byClient) != 3 {
		t.Fatalf("client side should match all 3, got %d", len(byClient))
	}

	windowed := l.List(ListFilter{ParticipantID: "p1", From: monday.Add(10*time.Hour + 30*time.Minute)})
	if len(windowed) != 1 || !windowed[0].Start.Equal(monday.Add(11*time.Hour)) {
		t.Fatalf("window filter wrong: %+v", windowed)
	}
}

func TestWatch_NotifiesOnCommit(t *testing.T) {
	l := New(clock.NewFake(monday))
	var seen []model.Appointment
	l.Watch(func(a model.Appointment) { seen = append(seen, a) })

	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	l.Transition(a.ID, model.EventCancel, "changed plans")

	if len(seen) != 2 {
		t.Fatalf("expected 2 change notifications, got %d", len(seen))
	}
	if seen[0].Status != model.StatusConfirmed || seen[1].Status != model.StatusCancelled {
		t.Fatalf("unexpected sequence: %s then %s", seen[0].Status, seen[1].Status)
	}
}

func TestPrune_ArchivesOnlyTerminal(t *testing.T) {
	clk := clock.NewFake(monday)
	l := New(clk)
	a, _ := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour)))
	b, _ := l.Create(params("p1", monday.Add(11*time.Hour), monday.Add(12*time.Hour)))
	l.Transition(a.ID, model.EventCancel, "old booking")

	archived := l.Prune(monday.AddDate(0, 0, 30))
	if len(archived) != 1 || archived[0].ID != a.ID {
		t.Fatalf("expected only the cancelled appointment archived, got %d", len(archived))
	}
	if _, err := l.Get(a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("pruned appointment still in ledger: %v", err)
	}
	if _, err := l.Get(b.ID); err != nil {
		t.Fatalf("active appointment must survive prune: %v", err)
	}
}

func TestRestore_Rehydrates(t *testing.T) {
	l := New(clock.NewFake(monday))
	l.Restore([]model.Appointment{{
		ID:             "a1",
		ProfessionalID: "p1",
		ClientID:       "c1",
		Start:          monday.Add(9 * time.Hour),
		End:            monday.Add(10 * time.Hour),
		Status:         model.StatusConfirmed,
	}})

	if _, err := l.Get("a1"); err != nil {
		t.Fatalf("restored appointment missing: %v", err)
	}
	if _, err := l.Create(params("p1", monday.Add(9*time.Hour), monday.Add(10*time.Hour))); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("restored interval must hold, got %v", err)
	}
}
