package domain

import (
	"testing"
	"time"
)

func TestActivePremium_Boundaries(t *testing.T) {
	now := mustUTC(t, "2025-02-01T00:00:00Z")

	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	cases := []struct {
		name string
		u    User
		want bool
	}{
		{"free", User{Tier: TierFree}, false},
		{"premium no expiry", User{Tier: TierPremium}, false},
		{"premium expired 1s ago", User{Tier: TierPremium, PremiumUntil: &past}, false},
		{"premium expires in 1s", User{Tier: TierPremium, PremiumUntil: &future}, true},
	}
	for _, tc := range cases {
		if got := tc.u.ActivePremium(now); got != tc.want {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPremiumExpired(t *testing.T) {
	now := mustUTC(t, "2025-02-01T00:00:00Z")
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	if (User{Tier: TierFree}).PremiumExpired(now) {
		t.Fatalf("free tier is never expired-premium")
	}
	if !(User{Tier: TierPremium, PremiumUntil: &past}).PremiumExpired(now) {
		t.Fatalf("expiry in the past must count as expired")
	}
	if (User{Tier: TierPremium, PremiumUntil: &future}).PremiumExpired(now) {
		t.Fatalf("expiry in the future must not count as expired")
	}
}

func TestCanAddManualTask(t *testing.T) {
	now := mustUTC(t, "2025-02-10T00:00:00Z")
	until := now.Add(24 * time.Hour)

	// Premium: uncapped.
	u := premiumUser(until)
	u.ManualTasksThisMonth = 50
	if !u.CanAddManualTask(now, 5) {
		t.Fatalf("premium must be uncapped")
	}

	// Free at the cap.
	u = User{Tier: TierFree, ManualTasksThisMonth: 5, MonthResetAt: MonthStart(now)}
	if u.CanAddManualTask(now, 5) {
		t.Fatalf("free tier at cap must be blocked")
	}

	// Cap frees up after the month rolls over.
	u.MonthResetAt = now.Add(-32 * 24 * time.Hour)
	if !u.CanAddManualTask(now, 5) {
		t.Fatalf("rolled-over month must reset the cap")
	}
}

func TestParseDueHuman(t *testing.T) {
	now := mustUTC(t, "2025-02-01T12:00:00Z")

	cases := []struct {
		in   string
		want string
	}{
		{"90m", "2025-02-01T13:30:00Z"},
		{"2h", "2025-02-01T14:00:00Z"},
		{"1h30m", "2025-02-01T13:30:00Z"},
		{"3d", "2025-02-04T12:00:00Z"},
		{"45", "2025-02-01T12:45:00Z"},
		{"2025-03-01 09:00", "2025-03-01T09:00:00Z"},
	}
	for _, tc := range cases {
		got, err := ParseDueHuman(tc.in, now)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != mustUTC(t, tc.want) {
			t.Fatalf("%q: want %s, got %s", tc.in, tc.want, got)
		}
	}

	for _, in := range []string{"", "soon", "2024-01-01 00:00"} {
		if _, err := ParseDueHuman(in, now); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestTaskPredicates(t *testing.T) {
	now := mustUTC(t, "2025-02-01T12:00:00Z")

	task := Task{DueAt: now.Add(-time.Hour)}
	if !task.Overdue(now) {
		t.Fatalf("past due must be overdue")
	}
	task.Completed = true
	if task.Overdue(now) {
		t.Fatalf("completed task is never overdue")
	}

	a := Task{Origin: OriginAssignment, AssignmentID: "42"}
	if a.CorrelationID() != "42" {
		t.Fatalf("assignment correlation id")
	}
	e := Task{Origin: OriginEvent, EventID: "7"}
	if e.CorrelationID() != "7" {
		t.Fatalf("event correlation id")
	}
	m := Task{Origin: OriginManual}
	if m.CorrelationID() != "" {
		t.Fatalf("manual tasks have no correlation id")
	}
}
