// Package locate resolves the user's release constraints to one concrete
// Swiss release, enforcing the per-target revision blocklist.
package locate

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/config"
	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/model"
	"github.com/3leaps/swissfetch/pkg/revision"
)

// Releases is the subset of the hosting API the locator needs.
type Releases interface {
	ByTag(ctx context.Context, repo, tag string) (*model.Release, error)
	List(ctx context.Context, repo string) ([]model.Release, error)
}

// Constraints are the user's release choices. Tag wins over Previous.
type Constraints struct {
	Tag      string
	Previous bool
}

// Locator resolves releases of one repository.
type Locator struct {
	api       Releases
	repo      string
	blocklist config.Blocklist
	log       zerolog.Logger
}

func New(cfg *config.Config, api Releases, log zerolog.Logger) *Locator {
	return &Locator{
		api:       api,
		repo:      cfg.Repo,
		blocklist: cfg.Blocklist,
		log:       log,
	}
}

// Resolution is a located release and the blocklist decision that led to it.
// Decision is DecisionFallback when newer releases were skipped as blocked.
type Resolution struct {
	Release  *model.Release
	Decision revision.Decision
}

// Resolve returns the release to install on target.
//
// An explicit tag is never substituted: a blocked one fails with
// KindBlockedRevision, checked before any request is made. Without a tag the
// newest official release is used, falling back to the newest non-blocked
// older one.
func (l *Locator) Resolve(ctx context.Context, c Constraints, target model.Target) (*Resolution, error) {
	blocked := l.blocklist.For(target)
	if c.Tag != "" {
		rel, err := l.byTag(ctx, c.Tag, blocked)
		if err != nil {
			return nil, err
		}
		return &Resolution{Release: rel, Decision: revision.DecisionAccept}, nil
	}

	rels, err := l.api.List(ctx, l.repo)
	if err != nil {
		return nil, err
	}
	official := Official(rels)
	if len(official) == 0 {
		return nil, fault.New(fault.KindNoSafeRelease, "%s has no official releases", l.repo)
	}

	start := 0
	if c.Previous {
		if len(official) < 2 {
			return nil, fault.New(fault.KindNoSafeRelease, "%s has no release before %s", l.repo, official[0].TagName)
		}
		l.log.Info().Str("skipped", official[0].TagName).Msg("Using previous release")
		start = 1
	}

	for i := start; i < len(official); i++ {
		rel := official[i]
		decision, msg := revision.Decide(rel.TagName, blocked, false)
		if decision == revision.DecisionAccept {
			if i > start {
				l.log.Info().Str("tag", rel.TagName).Msg("Using newest release outside the blocklist")
				decision = revision.DecisionFallback
			}
			return &Resolution{Release: &rel, Decision: decision}, nil
		}
		l.log.Warn().Str("tag", rel.TagName).Str("target", string(target)).Msg(msg)
	}
	return nil, fault.New(fault.KindNoSafeRelease, "every candidate release of %s is inside the blocked range %s for %s", l.repo, blocked, target)
}

func (l *Locator) byTag(ctx context.Context, tag string, blocked revision.Range) (*model.Release, error) {
	if d, msg := revision.Decide(tag, blocked, true); d == revision.DecisionRefuse {
		return nil, fault.New(fault.KindBlockedRevision, "%s", msg)
	}
	rel, err := l.api.ByTag(ctx, l.repo, tag)
	if err != nil {
		return nil, err
	}
	// The served tag may differ from the requested one (e.g. case).
	if blocked.Blocked(rel.TagName) {
		return nil, fault.New(fault.KindBlockedRevision, "%s resolved to %s, inside the blocked range %s", tag, rel.TagName, blocked)
	}
	return rel, nil
}

// Official returns the non-draft, non-prerelease releases newest first.
// Releases created at the same instant keep their input order.
func Official(rels []model.Release) []model.Release {
	out := make([]model.Release, 0, len(rels))
	for _, r := range rels {
		if r.Official() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
