package locate

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/config"
	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/model"
	"github.com/3leaps/swissfetch/pkg/revision"
)

type fakeAPI struct {
	releases []model.Release
	byTag    map[string]model.Release
	calls    []string
}

func (f *fakeAPI) ByTag(_ context.Context, repo, tag string) (*model.Release, error) {
	f.calls = append(f.calls, "tag:"+repo+"@"+tag)
	rel, ok := f.byTag[tag]
	if !ok {
		return nil, fault.New(fault.KindNetwork, "GET tags/%s: status 404: Not Found", tag)
	}
	return &rel, nil
}

func (f *fakeAPI) List(_ context.Context, repo string) ([]model.Release, error) {
	f.calls = append(f.calls, "list:"+repo)
	return f.releases, nil
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rel(tag string, day int) model.Release {
	return model.Release{TagName: tag, CreatedAt: base.AddDate(0, 0, day)}
}

func newLocator(t *testing.T, api *fakeAPI) *Locator {
	t.Helper()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, api, zerolog.Nop())
}

func resolve(t *testing.T, api *fakeAPI, c Constraints, target model.Target) *Resolution {
	t.Helper()
	got, err := newLocator(t, api).Resolve(context.Background(), c, target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return got
}

func wantResolved(t *testing.T, got *Resolution, tag string, decision revision.Decision) {
	t.Helper()
	if got.Release.TagName != tag || got.Decision != decision {
		t.Errorf("resolved %s (%s) want %s (%s)", got.Release.TagName, got.Decision, tag, decision)
	}
}

func wantKind(t *testing.T, err error, kind fault.Kind) {
	t.Helper()
	if !fault.Is(err, kind) {
		t.Fatalf("error %v has kind %v, want %v", err, fault.KindOf(err), kind)
	}
}

func TestResolveLatest(t *testing.T) {
	api := &fakeAPI{releases: []model.Release{
		rel("v0.6r1900", 10),
		rel("v0.6r1957", 20),
		rel("v0.6r1913", 15),
	}}

	got := resolve(t, api, Constraints{}, model.TargetPicoBoot)
	wantResolved(t, got, "v0.6r1957", revision.DecisionAccept)
	if diff := cmp.Diff([]string{"list:emukidid/swiss-gc"}, api.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestResolveSkipsDraftsAndPrereleases(t *testing.T) {
	draft := rel("v0.6r1990", 30)
	draft.Draft = true
	pre := rel("v0.6r1980", 25)
	pre.Prerelease = true
	api := &fakeAPI{releases: []model.Release{draft, pre, rel("v0.6r1957", 20)}}

	got := resolve(t, api, Constraints{}, model.TargetGCLoader)
	wantResolved(t, got, "v0.6r1957", revision.DecisionAccept)
}

func TestResolveBlockedLatestFallsBackToNewestSafe(t *testing.T) {
	api := &fakeAPI{releases: []model.Release{
		rel("v0.6r1867", 40),
		rel("v0.6r1800", 30),
		rel("v0.6r1694", 20),
		rel("v0.6r1668", 10),
	}}

	got := resolve(t, api, Constraints{}, model.TargetGCLoader)
	wantResolved(t, got, "v0.6r1694", revision.DecisionFallback)
}

func TestResolveBlocklistOnlyAppliesToGCLoader(t *testing.T) {
	api := &fakeAPI{releases: []model.Release{rel("v0.6r1800", 30), rel("v0.6r1668", 10)}}

	got := resolve(t, api, Constraints{}, model.TargetPicoLoader)
	wantResolved(t, got, "v0.6r1800", revision.DecisionAccept)
}

func TestResolveNoSafeRelease(t *testing.T) {
	api := &fakeAPI{releases: []model.Release{rel("v0.6r1800", 30), rel("v0.6r1700", 10)}}

	_, err := newLocator(t, api).Resolve(context.Background(), Constraints{}, model.TargetGCLoader)
	wantKind(t, err, fault.KindNoSafeRelease)
}

func TestResolveNoOfficialRelease(t *testing.T) {
	draft := rel("v0.6r1957", 1)
	draft.Draft = true
	api := &fakeAPI{releases: []model.Release{draft}}

	_, err := newLocator(t, api).Resolve(context.Background(), Constraints{}, model.TargetPicoBoot)
	wantKind(t, err, fault.KindNoSafeRelease)
}

func TestResolvePrevious(t *testing.T) {
	tests := []struct {
		name     string
		target   model.Target
		releases []model.Release
		want     string
		decision revision.Decision
		wantKind fault.Kind
	}{
		{
			name:     "second newest",
			target:   model.TargetPicoBoot,
			releases: []model.Release{rel("v0.6r1913", 10), rel("v0.6r1957", 20)},
			want:     "v0.6r1913",
			decision: revision.DecisionAccept,
		},
		{
			name:     "skips blocked for gcloader",
			target:   model.TargetGCLoader,
			releases: []model.Release{rel("v0.6r1957", 30), rel("v0.6r1800", 20), rel("v0.6r1668", 10)},
			want:     "v0.6r1668",
			decision: revision.DecisionFallback,
		},
		{
			name:     "only one release",
			target:   model.TargetPicoBoot,
			releases: []model.Release{rel("v0.6r1957", 30)},
			wantKind: fault.KindNoSafeRelease,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{releases: tt.releases}
			if tt.wantKind != fault.KindUnknown {
				_, err := newLocator(t, api).Resolve(context.Background(), Constraints{Previous: true}, tt.target)
				wantKind(t, err, tt.wantKind)
				return
			}
			wantResolved(t, resolve(t, api, Constraints{Previous: true}, tt.target), tt.want, tt.decision)
		})
	}
}

func TestResolveExplicitTag(t *testing.T) {
	api := &fakeAPI{byTag: map[string]model.Release{"v0.6r1668": rel("v0.6r1668", 1)}}

	got := resolve(t, api, Constraints{Tag: "v0.6r1668", Previous: true}, model.TargetGCLoader)
	wantResolved(t, got, "v0.6r1668", revision.DecisionAccept)
	if diff := cmp.Diff([]string{"tag:emukidid/swiss-gc@v0.6r1668"}, api.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestResolveExplicitBlockedTagMakesNoRequest(t *testing.T) {
	api := &fakeAPI{byTag: map[string]model.Release{"v0.6r1800": rel("v0.6r1800", 1)}}

	_, err := newLocator(t, api).Resolve(context.Background(), Constraints{Tag: "v0.6r1800"}, model.TargetGCLoader)
	wantKind(t, err, fault.KindBlockedRevision)
	if len(api.calls) != 0 {
		t.Errorf("unexpected calls %v", api.calls)
	}
}

func TestResolveExplicitTagRecheckedAfterFetch(t *testing.T) {
	api := &fakeAPI{byTag: map[string]model.Release{"latest-stable": rel("v0.6r1700", 1)}}

	_, err := newLocator(t, api).Resolve(context.Background(), Constraints{Tag: "latest-stable"}, model.TargetGCLoader)
	wantKind(t, err, fault.KindBlockedRevision)
	if len(api.calls) != 1 {
		t.Errorf("calls %v want exactly one", api.calls)
	}
}

func TestResolveExplicitBlockedTagAllowedForOtherTargets(t *testing.T) {
	api := &fakeAPI{byTag: map[string]model.Release{"v0.6r1800": rel("v0.6r1800", 1)}}

	got := resolve(t, api, Constraints{Tag: "v0.6r1800"}, model.TargetPicoBoot)
	wantResolved(t, got, "v0.6r1800", revision.DecisionAccept)
}

func TestOfficialStableOnTies(t *testing.T) {
	got := Official([]model.Release{rel("a", 1), rel("b", 1), rel("c", 2)})
	var tags []string
	for _, r := range got {
		tags = append(tags, r.TagName)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, tags); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}
