package integration

import (
	"testing"
	"time"

	"github.com/oliullah100/kolmo/internal/realtime"
	"github.com/oliullah100/kolmo/test/testhelpers"
)

// TestPresenceBroadcasts verifies online and offline announcements reach
// everyone except the subject.
func TestPresenceBroadcasts(t *testing.T) {
	env := testhelpers.NewEnv(t, realtime.Options{})
	watcher := env.Connect(t, "watcher")
	subject := env.Connect(t, "subject")

	online := testhelpers.WaitForEvent(t, watcher, realtime.KindUserStatus, eventTimeout)
	if online["userId"] != "subject" || online["isOnline"] != true {
		t.Errorf("Unexpected online status %v", online)
	}

	if err := testhelpers.CloseWebSocket(subject); err != nil {
		t.Fatalf("Failed to close subject: %v", err)
	}

	offline := testhelpers.WaitForEvent(t, watcher, realtime.KindUserStatus, eventTimeout)
	if offline["userId"] != "subject" || offline["isOnline"] != false {
		t.Errorf("Unexpected offline status %v", offline)
	}
	env.WaitOnline(t, "subject", false)
}

// TestReconnectAnnouncesOnlineWithoutOffline verifies a second connection for
// the same user replaces the first without an offline flap.
func TestReconnectAnnouncesOnlineWithoutOffline(t *testing.T) {
	env := testhelpers.NewEnv(t, realtime.Options{CloseSuperseded: true})
	watcher := env.Connect(t, "watcher")

	first := env.Connect(t, "U1")
	testhelpers.WaitForEvent(t, watcher, realtime.KindUserStatus, eventTimeout)

	second := env.Connect(t, "U1")
	again := testhelpers.WaitForEvent(t, watcher, realtime.KindUserStatus, eventTimeout)
	if again["isOnline"] != true {
		t.Errorf("Expected a second online status, got %v", again)
	}

	closeErr := testhelpers.ReadCloseError(t, first)
	if closeErr.Code != realtime.CloseSuperseded {
		t.Errorf("Expected close code %d, got %d", realtime.CloseSuperseded, closeErr.Code)
	}

	if err := testhelpers.SendEvent(second, map[string]string{"type": "get_notifications"}); err != nil {
		t.Fatalf("Failed to send on new connection: %v", err)
	}
	testhelpers.WaitForEvent(t, second, realtime.KindNotificationsRequested, eventTimeout)

	if got := env.Manager.OnlineCount(); got != 2 {
		t.Errorf("Expected 2 users online, got %d", got)
	}
	testhelpers.ExpectNoEvent(t, watcher, realtime.KindUserStatus, 300*time.Millisecond)
}

// TestFirstUserSeesLaterArrivals connects several users and checks the first
// one hears about each of the others.
func TestFirstUserSeesLaterArrivals(t *testing.T) {
	env := testhelpers.NewEnv(t, realtime.Options{})
	users := []string{"a", "b", "c", "d"}

	first := env.Connect(t, users[0])
	for _, id := range users[1:] {
		env.Connect(t, id)
	}

	seen := map[string]bool{}
	for range users[1:] {
		ev := testhelpers.WaitForEvent(t, first, realtime.KindUserStatus, eventTimeout)
		seen[ev["userId"].(string)] = true
	}
	for _, id := range users[1:] {
		if !seen[id] {
			t.Errorf("First user never saw %s come online", id)
		}
	}
	if got := env.Manager.OnlineCount(); got != len(users) {
		t.Errorf("Expected %d users online, got %d", len(users), got)
	}
}
