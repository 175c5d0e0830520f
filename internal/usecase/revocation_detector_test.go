package usecase

import (
	"testing"

	"github.com/arklim/session-guard/internal/core/domain"
)

// tri is a right value that may also be absent.
type tri int

const (
	absent tri = iota
	deny
	grant
)

func buildSnapshot(values []tri) domain.PermissionSnapshot {
	rights := make(map[domain.Right]bool)
	for i, r := range domain.KnownRights() {
		switch values[i] {
		case deny:
			rights[r] = false
		case grant:
			rights[r] = true
		}
	}
	return domain.NewPermissionSnapshot(rights)
}

func allCombinations(n int) [][]tri {
	if n == 0 {
		return [][]tri{{}}
	}
	var out [][]tri
	for _, rest := range allCombinations(n - 1) {
		for _, v := range []tri{absent, deny, grant} {
			combo := append([]tri{v}, rest...)
			out = append(out, combo)
		}
	}
	return out
}

func TestDetectRevocationsOnlyGrantedToDenied(t *testing.T) {
	combos := allCombinations(len(domain.KnownRights()))
	for _, b := range combos {
		for _, c := range combos {
			baseline := buildSnapshot(b)
			current := buildSnapshot(c)
			report := DetectRevocations(baseline, current)

			for i, right := range domain.KnownRights() {
				want := b[i] == grant && c[i] == deny
				if got := report.Contains(right); got != want {
					t.Fatalf("baseline %v current %v right %s: reported=%v want %v", b, c, right, got, want)
				}
			}
			if report.StoreUnreachable {
				t.Fatalf("per-right detection must never flag the store")
			}
		}
	}
}

func TestRevocationDetectorFirstSnapshotBecomesBaseline(t *testing.T) {
	detector := NewRevocationDetector()
	current := domain.NewPermissionSnapshot(map[domain.Right]bool{domain.RightCanDonate: false})

	report, _ := detector.Detect(current)
	if !report.IsEmpty() {
		t.Fatalf("expected no report without a baseline, got %v", report.Rights)
	}

	baseline, ok := detector.Baseline()
	if !ok || !baseline.Equal(current) {
		t.Fatalf("expected first snapshot to become the baseline")
	}
}

func TestRevocationDetectorAdoptsGrants(t *testing.T) {
	detector := NewRevocationDetector()
	detector.Reset(domain.NewPermissionSnapshot(map[domain.Right]bool{
		domain.RightCanDonate:      false,
		domain.RightCanViewHistory: true,
	}))

	report, _ := detector.Detect(domain.NewPermissionSnapshot(map[domain.Right]bool{
		domain.RightCanDonate:      true,
		domain.RightCanViewHistory: true,
	}))
	if !report.IsEmpty() {
		t.Fatalf("grants must not be reported, got %v", report.Rights)
	}

	baseline, _ := detector.Baseline()
	if !baseline.Granted(domain.RightCanDonate) {
		t.Fatalf("expected granted right to be adopted into the baseline")
	}

	report, _ = detector.Detect(domain.NewPermissionSnapshot(map[domain.Right]bool{
		domain.RightCanDonate:      false,
		domain.RightCanViewHistory: true,
	}))
	if !report.Contains(domain.RightCanDonate) {
		t.Fatalf("expected a later denial of the adopted grant to be reported")
	}
}

func TestRevocationDetectorAdoptsGrantsAlongsideTentativeRevocation(t *testing.T) {
	detector := NewRevocationDetector()
	detector.Reset(domain.NewPermissionSnapshot(map[domain.Right]bool{
		domain.RightCanDonate:           true,
		domain.RightCanViewHistory:      false,
		domain.RightCanViewNotification: true,
	}))

	report, anchor := detector.Detect(domain.NewPermissionSnapshot(map[domain.Right]bool{
		domain.RightCanDonate:           false,
		domain.RightCanViewHistory:      true,
		domain.RightCanViewNotification: true,
	}))
	if len(report.Rights) != 1 || report.Rights[0] != domain.RightCanDonate {
		t.Fatalf("expected only canDonate to be reported, got %v", report.Rights)
	}
	if anchor.Granted(domain.RightCanViewHistory) {
		t.Fatalf("anchor must be the baseline before adoption")
	}

	baseline, _ := detector.Baseline()
	if !baseline.Granted(domain.RightCanViewHistory) {
		t.Fatalf("expected the grant to be adopted")
	}
	if !baseline.Granted(domain.RightCanDonate) {
		t.Fatalf("tentatively revoked right must keep its granted baseline value")
	}
}

func TestRevocationDetectorUnknownRightsAreVacuouslyGranted(t *testing.T) {
	detector := NewRevocationDetector()
	detector.Reset(domain.NewPermissionSnapshot(map[domain.Right]bool{domain.RightCanDonate: true}))

	report, _ := detector.Detect(domain.NewPermissionSnapshot(map[domain.Right]bool{
		domain.RightCanDonate:      true,
		domain.RightCanViewHistory: false,
	}))
	if !report.IsEmpty() {
		t.Fatalf("rights absent from the baseline must not be reported, got %v", report.Rights)
	}

	baseline, _ := detector.Baseline()
	if v, ok := baseline.Value(domain.RightCanViewHistory); !ok || v {
		t.Fatalf("expected first concrete value to be recorded, got %v (known=%v)", v, ok)
	}
}

func TestRevocationDetectorClear(t *testing.T) {
	detector := NewRevocationDetector()
	detector.Reset(domain.AllGranted())
	detector.Clear()
	if _, ok := detector.Baseline(); ok {
		t.Fatalf("expected baseline to be cleared")
	}
}
