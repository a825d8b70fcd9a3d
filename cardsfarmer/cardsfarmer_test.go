package cardsfarmer_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/k64z/cardfarmer/cardsfarmer"
	"github.com/k64z/cardfarmer/platform/platformtest"
)

// fakeWebClient serves a fixed badge page on the first scan and an empty one
// on every later scan, and reports cardsLeft[appID] remaining drops for each
// per-game card page, so a farming round drains in one pass without real
// network access.
type fakeWebClient struct {
	mu         sync.Mutex
	badgePage  string
	cardsLeft  map[uint32]int
	badgeServed bool
}

func newFakeWebClient(badgePage string) *fakeWebClient {
	return &fakeWebClient{badgePage: badgePage, cardsLeft: map[uint32]int{}}
}

func (f *fakeWebClient) GetBadgePage(ctx context.Context, page int) (*html.Node, error) {
	f.mu.Lock()
	served := f.badgeServed
	if page == 1 {
		f.badgeServed = true
	}
	f.mu.Unlock()
	if page > 1 || served {
		return html.Parse(strings.NewReader(`<html><body></body></html>`))
	}
	return html.Parse(strings.NewReader(f.badgePage))
}

func (f *fakeWebClient) GetCardPage(ctx context.Context, appID uint32) (*html.Node, error) {
	f.mu.Lock()
	remaining := f.cardsLeft[appID]
	f.mu.Unlock()
	doc := `<html><body><div class="progress_info_bold">` +
		itoa(remaining) + ` card drops remaining</div></body></html>`
	return html.Parse(strings.NewReader(doc))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

const oneGameBadgePage = `<html><body>
	<div class="badge_title_stats_content">
		<div id="card_drop_info_gamebadge_440_1_0"></div>
		<div class="progress_info_bold">1 card drops remaining</div>
		<div class="badge_title_stats_playtime">0.0 hrs on record</div>
		You'll receive card drops by playing Team Fortress 2.
	</div>
</body></html>`

func TestStartFarmingPlaysAndFinishes(t *testing.T) {
	web := newFakeWebClient(oneGameBadgePage)
	web.cardsLeft[440] = 0 // drains immediately on first ShouldFarm check

	plat := platformtest.New()
	finished := make(chan bool, 1)

	farmer := cardsfarmer.New(plat, web,
		cardsfarmer.WithFarmingDelay(10*time.Millisecond),
		cardsfarmer.WithMaxFarmingTime(time.Second),
		cardsfarmer.WithFarmingFinishedHandler(func(success bool) {
			finished <- success
		}),
	)

	farmer.StartFarming(context.Background())

	select {
	case success := <-finished:
		if !success {
			t.Error("expected successful finish")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("farming round did not finish in time")
	}

	if len(plat.PlayedAppIDs) == 0 || plat.PlayedAppIDs[0] != 440 {
		t.Errorf("PlayedAppIDs = %v, want to contain 440", plat.PlayedAppIDs)
	}
}

func TestStartFarmingIsNoopWhenPaused(t *testing.T) {
	web := newFakeWebClient(`<html><body></body></html>`)
	plat := platformtest.New()
	farmer := cardsfarmer.New(plat, web)

	farmer.Pause(false)
	farmer.StartFarming(context.Background())

	time.Sleep(50 * time.Millisecond)
	if farmer.NowFarming() {
		t.Error("expected StartFarming to no-op while paused")
	}
}

func TestStickyPauseRequiresUserAction(t *testing.T) {
	web := newFakeWebClient(`<html><body></body></html>`)
	plat := platformtest.New()
	farmer := cardsfarmer.New(plat, web)

	farmer.Pause(true)
	farmer.Resume(context.Background(), false)

	summary := farmer.Summary()
	if !summary.Paused {
		t.Error("sticky pause must survive a non-user Resume")
	}

	farmer.Resume(context.Background(), true)
	summary = farmer.Summary()
	if summary.Paused {
		t.Error("sticky pause must clear on a user-action Resume")
	}
}

const twoGameBadgePage = `<html><body>
	<div class="badge_title_stats_content">
		<div id="card_drop_info_gamebadge_440_1_0"></div>
		<div class="progress_info_bold">2 card drops remaining</div>
		<div class="badge_title_stats_playtime">0.0 hrs on record</div>
		You'll receive card drops by playing Team Fortress 2.
	</div>
	<div class="badge_title_stats_content">
		<div id="card_drop_info_gamebadge_730_1_0"></div>
		<div class="progress_info_bold">2 card drops remaining</div>
		<div class="badge_title_stats_playtime">0.0 hrs on record</div>
		You'll receive card drops by playing Counter-Strike 2.
	</div>
</body></html>`

// TestOnNewGameAddedReplansWhenBelowBumpThreshold regression-tests the
// complex-mode re-plan predicate: while FarmMultiple is bumping two games
// that both sit below HoursToBump, OnNewGameAdded must pulse the reset
// event so the round wakes and re-enters FarmMultiple immediately instead
// of sleeping out the full farming delay (an inverted predicate here
// previously required a game to have already crossed the threshold before
// it would re-plan at all, so a freshly added ~0-hour game never woke it).
func TestOnNewGameAddedReplansWhenBelowBumpThreshold(t *testing.T) {
	web := newFakeWebClient(twoGameBadgePage)
	web.cardsLeft[440] = 2
	web.cardsLeft[730] = 2

	plat := platformtest.New()
	farmer := cardsfarmer.New(plat, web,
		cardsfarmer.WithCardDropsRestricted(true),
		cardsfarmer.WithMaxGamesPlayedConcurrently(2),
		cardsfarmer.WithFarmingDelay(time.Hour),
		cardsfarmer.WithMaxFarmingTime(time.Hour),
	)

	farmer.StartFarming(context.Background())
	time.Sleep(50 * time.Millisecond) // let FarmMultiple enter its long Wait

	callsBefore := plat.CallCount()
	farmer.OnNewGameAdded(context.Background())

	deadline := time.After(1 * time.Second)
	for {
		if plat.CallCount() > callsBefore {
			break // FarmMultiple re-entered and replayed PlayGames: the round woke
		}
		select {
		case <-deadline:
			farmer.StopFarming(context.Background())
			t.Fatal("round never woke after OnNewGameAdded; stuck waiting out the full farming delay")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	farmer.StopFarming(context.Background())
}

func TestStopFarmingClearsNowFarming(t *testing.T) {
	web := newFakeWebClient(oneGameBadgePage)
	web.cardsLeft[440] = 5 // never drains on its own

	plat := platformtest.New()
	farmer := cardsfarmer.New(plat, web,
		cardsfarmer.WithFarmingDelay(time.Hour), // long wait, forces StopFarming to preempt it
	)

	farmer.StartFarming(context.Background())
	time.Sleep(50 * time.Millisecond)

	farmer.StopFarming(context.Background())

	if farmer.NowFarming() {
		t.Error("expected NowFarming false after StopFarming returns")
	}
}
